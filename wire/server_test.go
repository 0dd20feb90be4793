package wire

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo/accessctl/model"
	"github.com/evalgo/accessctl/status"
	"github.com/evalgo/accessctl/tripswitch"
	"github.com/evalgo/accessctl/validate"
)

type fakeEvents struct {
	m *model.AccessModel
}

func (f *fakeEvents) AddUser(user string) validate.Result {
	if err := f.m.AddUser(user); err != nil {
		return validate.Result{Error: err}
	}
	return validate.Result{Success: true}
}
func (f *fakeEvents) RemoveUser(user string) validate.Result { return validate.Result{Success: true} }
func (f *fakeEvents) AddGroup(group string) validate.Result  { return validate.Result{Success: true} }
func (f *fakeEvents) RemoveGroup(group string) validate.Result { return validate.Result{Success: true} }
func (f *fakeEvents) AddUserToGroup(user, group string) validate.Result {
	return validate.Result{Success: true}
}
func (f *fakeEvents) RemoveUserFromGroup(user, group string) validate.Result {
	return validate.Result{Success: true}
}
func (f *fakeEvents) AddGroupToGroup(group, parent string) validate.Result {
	return validate.Result{Success: true}
}
func (f *fakeEvents) RemoveGroupFromGroup(group, parent string) validate.Result {
	return validate.Result{Success: true}
}
func (f *fakeEvents) AddUserComponentAccess(user string, access model.ComponentAccess) validate.Result {
	return validate.Result{Success: true}
}
func (f *fakeEvents) RemoveUserComponentAccess(user string, access model.ComponentAccess) validate.Result {
	return validate.Result{Success: true}
}
func (f *fakeEvents) AddGroupComponentAccess(group string, access model.ComponentAccess) validate.Result {
	return validate.Result{Success: true}
}
func (f *fakeEvents) RemoveGroupComponentAccess(group string, access model.ComponentAccess) validate.Result {
	return validate.Result{Success: true}
}
func (f *fakeEvents) AddEntityType(entityType string) validate.Result {
	return validate.Result{Success: true}
}
func (f *fakeEvents) RemoveEntityType(entityType string) validate.Result {
	return validate.Result{Success: true}
}
func (f *fakeEvents) AddEntity(entityType, entity string) validate.Result {
	return validate.Result{Success: true}
}
func (f *fakeEvents) RemoveEntity(entityType, entity string) validate.Result {
	return validate.Result{Success: true}
}
func (f *fakeEvents) AddUserEntityAccess(user, entityType, entity string) validate.Result {
	return validate.Result{Success: true}
}
func (f *fakeEvents) RemoveUserEntityAccess(user, entityType, entity string) validate.Result {
	return validate.Result{Success: true}
}
func (f *fakeEvents) AddGroupEntityAccess(group, entityType, entity string) validate.Result {
	return validate.Result{Success: true}
}
func (f *fakeEvents) RemoveGroupEntityAccess(group, entityType, entity string) validate.Result {
	return validate.Result{Success: true}
}

type fakeQuerySource struct{ m *model.AccessModel }

func (f *fakeQuerySource) NotifyQueryMethodCalled() error { return nil }
func (f *fakeQuerySource) Model() QueryModel              { return f.m }

func newTestServer(t *testing.T) (*Server, *model.AccessModel) {
	t.Helper()
	m := model.New()
	require.NoError(t, m.AddUser("alice"))
	require.NoError(t, m.AddGroup("admins"))
	require.NoError(t, m.AddUserToGroup("alice", "admins"))
	require.NoError(t, m.AddGroupComponentAccess("admins", model.ComponentAccess{Component: "billing", Level: "modify"}))

	trip := tripswitch.New(tripswitch.Config{Mode: tripswitch.ModeFailFast, WhenTrippedErr: assert.AnError}, nil)
	converter := status.New(status.Config{})

	s := New(Config{MetricsEnabled: true}, &fakeEvents{m: m}, nil, &fakeQuerySource{m: m}, trip, converter, nil)
	return s, m
}

func TestHealthzReportsHealthyUntilTripped(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	s.trip.Trip()

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestQueryHasAccessToComponent(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/api/users/alice/components/billing/levels/modify", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "true")
}

func TestQueryUnknownUserRendersNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/api/users/nobody/components/billing/levels/modify", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrippedSwitchFailsFastBeforeHandler(t *testing.T) {
	s, _ := newTestServer(t)
	s.trip.Trip()

	req := httptest.NewRequest(http.MethodGet, "/v1/api/users/alice/components", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type failingQuerySource struct {
	m   *model.AccessModel
	err error
}

func (f *failingQuerySource) NotifyQueryMethodCalled() error { return f.err }
func (f *failingQuerySource) Model() QueryModel              { return f.m }

func TestAutoTripActuatesOnMatchingHandlerError(t *testing.T) {
	m := model.New()
	refreshFailed := errors.New("refresh replay failed")
	trip := tripswitch.New(tripswitch.Config{Mode: tripswitch.ModeFailFast, WhenTrippedErr: assert.AnError}, nil)
	converter := status.New(status.Config{})

	s := New(Config{
		TripOn: func(err error) bool { return errors.Is(err, refreshFailed) },
	}, &fakeEvents{m: m}, nil, &failingQuerySource{m: m, err: refreshFailed}, trip, converter, nil)

	require.True(t, trip.Healthy())

	req := httptest.NewRequest(http.MethodGet, "/v1/api/users/alice/components", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	assert.True(t, trip.Tripped())
	assert.False(t, trip.Healthy())
}

func TestAddUserRouteCreatesUser(t *testing.T) {
	s, m := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/api/users", jsonBody(`{"user":"bob"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, m.HasUser("bob"))
}
