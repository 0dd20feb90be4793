// Package status implements the error-to-status converter: a
// registry mapping typed domain failures to wire-protocol status codes with
// structured attributes, so the transport layer (package wire) never needs
// its own type switch over domain errors.
package status

import (
	"errors"

	"github.com/evalgo/accessctl/graph"
	"github.com/evalgo/accessctl/model"
)

// Code is a transport-agnostic status code; package wire maps these to
// concrete HTTP status codes at the boundary.
type Code string

const (
	CodeNotFound           Code = "NOT_FOUND"
	CodeAlreadyExists      Code = "ALREADY_EXISTS"
	CodeFailedPrecondition Code = "FAILED_PRECONDITION"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeUnavailable        Code = "UNAVAILABLE"
	CodeInternal           Code = "INTERNAL"
)

// Status is the normalized, renderer-agnostic shape of a converted error.
// Method is optional; the transport layer fills it in with the originating
// route when it has one.
type Status struct {
	Code       Code
	Message    string
	Attributes map[string]string
	Method     string
}

// Renderer builds a Status for an error a Matcher has already claimed.
type Renderer func(err error) Status

// Matcher reports whether a Renderer applies to err.
type Matcher func(err error) bool

type registryEntry struct {
	match  Matcher
	render Renderer
}

// Converter holds an ordered registry of (Matcher, Renderer) pairs plus the
// built-in not-found / already-exists / cycle / blank-string families. The
// registry is checked in registration order before falling back to the
// built-ins, so callers can override behavior for their own error types
// (e.g. mapping a trip switch rejection to CodeUnavailable).
type Converter struct {
	registry                []registryEntry
	includeInnerExceptions  bool
	overrideInternalErrors  bool
	internalMessageOverride string
}

// Config mirrors the ErrorHandling.* configuration keys.
type Config struct {
	IncludeInnerExceptions             bool
	OverrideInternalServerErrors       bool
	InternalServerErrorMessageOverride string
}

// New returns a Converter configured per cfg.
func New(cfg Config) *Converter {
	return &Converter{
		includeInnerExceptions:  cfg.IncludeInnerExceptions,
		overrideInternalErrors:  cfg.OverrideInternalServerErrors,
		internalMessageOverride: cfg.InternalServerErrorMessageOverride,
	}
}

// Register adds a (match, render) pair consulted before the built-in rules.
func (c *Converter) Register(match Matcher, render Renderer) {
	c.registry = append(c.registry, registryEntry{match: match, render: render})
}

// Convert maps err to a Status. Not-found errors (package model's NotFound
// family) render with ParameterName and Identifier attributes; everything
// else unmatched by a registered or built-in rule renders as CodeInternal,
// with its message optionally replaced per OverrideInternalServerErrors.
func (c *Converter) Convert(err error) Status {
	if err == nil {
		return Status{}
	}

	for _, entry := range c.registry {
		if entry.match(err) {
			return entry.render(err)
		}
	}

	var notFound model.NotFound
	if errors.As(err, &notFound) {
		return Status{
			Code:    CodeNotFound,
			Message: notFound.Error(),
			Attributes: map[string]string{
				"parameterName": notFound.ParameterName(),
				"identifier":    notFound.Identifier(),
			},
		}
	}
	if errors.Is(err, model.ErrAlreadyExists) {
		return Status{Code: CodeAlreadyExists, Message: err.Error(), Attributes: c.innerAttrs(err)}
	}
	if errors.Is(err, model.ErrDoesNotExist) {
		return Status{Code: CodeFailedPrecondition, Message: err.Error(), Attributes: c.innerAttrs(err)}
	}
	if errors.Is(err, graph.ErrCircularReference) {
		return Status{Code: CodeFailedPrecondition, Message: err.Error(), Attributes: c.innerAttrs(err)}
	}
	if errors.Is(err, model.ErrEmptyString) {
		return Status{Code: CodeInvalidArgument, Message: err.Error(), Attributes: c.innerAttrs(err)}
	}

	return c.internal(err)
}

func (c *Converter) internal(err error) Status {
	if c.overrideInternalErrors {
		return Status{Code: CodeInternal, Message: c.internalMessageOverride}
	}
	return Status{Code: CodeInternal, Message: err.Error(), Attributes: c.innerAttrs(err)}
}

// innerAttrs attaches the immediate wrapped cause as a "cause" attribute
// when IncludeInnerExceptions is configured, so a client debugging a 500
// can see the underlying error without the server always leaking it.
func (c *Converter) innerAttrs(err error) map[string]string {
	if !c.includeInnerExceptions {
		return nil
	}
	cause := errors.Unwrap(err)
	if cause == nil {
		return nil
	}
	return map[string]string{"cause": cause.Error()}
}
