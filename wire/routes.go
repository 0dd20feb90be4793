package wire

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/evalgo/accessctl/model"
	"github.com/evalgo/accessctl/validate"
)

func (s *Server) mountEventRoutes(g *echo.Group, events EventProcessor, record Recorder) {
	mutate := func(result validate.Result) error {
		if !result.Success {
			return result.Error
		}
		if record != nil {
			return record(result)
		}
		return nil
	}

	g.POST("/users", func(c echo.Context) error {
		var req struct {
			User string `json:"user"`
		}
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
		}
		if err := mutate(events.AddUser(req.User)); err != nil {
			return s.renderError(c, err)
		}
		return c.NoContent(http.StatusCreated)
	})

	g.DELETE("/users/:user", func(c echo.Context) error {
		if err := mutate(events.RemoveUser(c.Param("user"))); err != nil {
			return s.renderError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	})

	g.POST("/groups", func(c echo.Context) error {
		var req struct {
			Group string `json:"group"`
		}
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
		}
		if err := mutate(events.AddGroup(req.Group)); err != nil {
			return s.renderError(c, err)
		}
		return c.NoContent(http.StatusCreated)
	})

	g.DELETE("/groups/:group", func(c echo.Context) error {
		if err := mutate(events.RemoveGroup(c.Param("group"))); err != nil {
			return s.renderError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	})

	g.POST("/users/:user/groups/:group", func(c echo.Context) error {
		if err := mutate(events.AddUserToGroup(c.Param("user"), c.Param("group"))); err != nil {
			return s.renderError(c, err)
		}
		return c.NoContent(http.StatusCreated)
	})

	g.DELETE("/users/:user/groups/:group", func(c echo.Context) error {
		if err := mutate(events.RemoveUserFromGroup(c.Param("user"), c.Param("group"))); err != nil {
			return s.renderError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	})

	g.POST("/groups/:group/parents/:parent", func(c echo.Context) error {
		if err := mutate(events.AddGroupToGroup(c.Param("group"), c.Param("parent"))); err != nil {
			return s.renderError(c, err)
		}
		return c.NoContent(http.StatusCreated)
	})

	g.DELETE("/groups/:group/parents/:parent", func(c echo.Context) error {
		if err := mutate(events.RemoveGroupFromGroup(c.Param("group"), c.Param("parent"))); err != nil {
			return s.renderError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	})

	g.POST("/users/:user/components", func(c echo.Context) error {
		var access model.ComponentAccess
		if err := c.Bind(&access); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
		}
		if err := mutate(events.AddUserComponentAccess(c.Param("user"), access)); err != nil {
			return s.renderError(c, err)
		}
		return c.NoContent(http.StatusCreated)
	})

	g.DELETE("/users/:user/components", func(c echo.Context) error {
		var access model.ComponentAccess
		if err := c.Bind(&access); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
		}
		if err := mutate(events.RemoveUserComponentAccess(c.Param("user"), access)); err != nil {
			return s.renderError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	})

	g.POST("/groups/:group/components", func(c echo.Context) error {
		var access model.ComponentAccess
		if err := c.Bind(&access); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
		}
		if err := mutate(events.AddGroupComponentAccess(c.Param("group"), access)); err != nil {
			return s.renderError(c, err)
		}
		return c.NoContent(http.StatusCreated)
	})

	g.DELETE("/groups/:group/components", func(c echo.Context) error {
		var access model.ComponentAccess
		if err := c.Bind(&access); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
		}
		if err := mutate(events.RemoveGroupComponentAccess(c.Param("group"), access)); err != nil {
			return s.renderError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	})

	g.POST("/entity-types/:entityType", func(c echo.Context) error {
		if err := mutate(events.AddEntityType(c.Param("entityType"))); err != nil {
			return s.renderError(c, err)
		}
		return c.NoContent(http.StatusCreated)
	})

	g.DELETE("/entity-types/:entityType", func(c echo.Context) error {
		if err := mutate(events.RemoveEntityType(c.Param("entityType"))); err != nil {
			return s.renderError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	})

	g.POST("/entity-types/:entityType/entities/:entity", func(c echo.Context) error {
		if err := mutate(events.AddEntity(c.Param("entityType"), c.Param("entity"))); err != nil {
			return s.renderError(c, err)
		}
		return c.NoContent(http.StatusCreated)
	})

	g.DELETE("/entity-types/:entityType/entities/:entity", func(c echo.Context) error {
		if err := mutate(events.RemoveEntity(c.Param("entityType"), c.Param("entity"))); err != nil {
			return s.renderError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	})

	g.POST("/users/:user/entity-types/:entityType/entities/:entity", func(c echo.Context) error {
		if err := mutate(events.AddUserEntityAccess(c.Param("user"), c.Param("entityType"), c.Param("entity"))); err != nil {
			return s.renderError(c, err)
		}
		return c.NoContent(http.StatusCreated)
	})

	g.DELETE("/users/:user/entity-types/:entityType/entities/:entity", func(c echo.Context) error {
		if err := mutate(events.RemoveUserEntityAccess(c.Param("user"), c.Param("entityType"), c.Param("entity"))); err != nil {
			return s.renderError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	})

	g.POST("/groups/:group/entity-types/:entityType/entities/:entity", func(c echo.Context) error {
		if err := mutate(events.AddGroupEntityAccess(c.Param("group"), c.Param("entityType"), c.Param("entity"))); err != nil {
			return s.renderError(c, err)
		}
		return c.NoContent(http.StatusCreated)
	})

	g.DELETE("/groups/:group/entity-types/:entityType/entities/:entity", func(c echo.Context) error {
		if err := mutate(events.RemoveGroupEntityAccess(c.Param("group"), c.Param("entityType"), c.Param("entity"))); err != nil {
			return s.renderError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	})
}

func (s *Server) mountQueryRoutes(g *echo.Group, queries QuerySource) {
	g.GET("/users/:user/components/:component/levels/:level", func(c echo.Context) error {
		if err := queries.NotifyQueryMethodCalled(); err != nil {
			return s.renderError(c, err)
		}
		has, err := queries.Model().HasAccessToComponent(c.Param("user"), model.ComponentAccess{
			Component: c.Param("component"),
			Level:     c.Param("level"),
		})
		if err != nil {
			return s.renderError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]bool{"hasAccess": has})
	})

	g.GET("/users/:user/components", func(c echo.Context) error {
		if err := queries.NotifyQueryMethodCalled(); err != nil {
			return s.renderError(c, err)
		}
		accesses, err := queries.Model().AccessibleComponents(c.Param("user"))
		if err != nil {
			return s.renderError(c, err)
		}
		return c.JSON(http.StatusOK, accesses)
	})

	g.GET("/users/:user/entity-types/:entityType/entities", func(c echo.Context) error {
		if err := queries.NotifyQueryMethodCalled(); err != nil {
			return s.renderError(c, err)
		}
		entities, err := queries.Model().AccessibleEntities(c.Param("user"), c.Param("entityType"))
		if err != nil {
			return s.renderError(c, err)
		}
		return c.JSON(http.StatusOK, entities)
	})
}
