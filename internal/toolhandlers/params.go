// Package toolhandlers implements the gateway's representative tool
// handlers (spec C9): thin translations from a tool call's JSON params and
// the session's ServerContext into a sentryapi.Client call, formatted as
// markdown.
package toolhandlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/sentry-mcp/gateway/internal/mcpsession"
	"github.com/sentry-mcp/gateway/internal/sentryapi"
	"github.com/sentry-mcp/gateway/internal/toolcatalog"
)

// decodeParams unmarshals a tool call's raw JSON arguments into dst. An
// empty/nil params value (a tool with no required arguments) is treated
// as "use zero values", not a decode error.
func decodeParams(params []byte, dst any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return &ParamError{Message: fmt.Sprintf("invalid arguments: %v", err)}
	}
	return nil
}

// ParamError is a handler-level validation failure (bad or conflicting
// parameters) — always model-readable, never classified as an internal
// error by classifyError.
type ParamError struct{ Message string }

func (e *ParamError) Error() string { return e.Message }

// resolveOrg applies spec C8's default-from-constraints rule for
// organization_slug and enforces C9's conflict rule: a handler that
// receives an organization_slug contradicting the session's bound
// constraint fails with a UserError, never silently overriding it.
func resolveOrg(sc mcpsession.ServerContext, paramOrg string) (string, error) {
	if sc.Constraints.OrganizationSlug != "" {
		if paramOrg != "" && paramOrg != sc.Constraints.OrganizationSlug {
			return "", &ParamError{Message: fmt.Sprintf("organization_slug %q conflicts with the session's bound organization %q", paramOrg, sc.Constraints.OrganizationSlug)}
		}
		return sc.Constraints.OrganizationSlug, nil
	}
	if paramOrg == "" {
		return "", &ParamError{Message: "organization_slug is required"}
	}
	return paramOrg, nil
}

// resolveProject applies the same default/conflict rule as resolveOrg,
// for project_slug. required controls whether an empty result (no
// constraint, no param) is itself an error.
func resolveProject(sc mcpsession.ServerContext, paramProject string, required bool) (string, error) {
	if sc.Constraints.ProjectSlug != "" {
		if paramProject != "" && paramProject != sc.Constraints.ProjectSlug {
			return "", &ParamError{Message: fmt.Sprintf("project_slug %q conflicts with the session's bound project %q", paramProject, sc.Constraints.ProjectSlug)}
		}
		return sc.Constraints.ProjectSlug, nil
	}
	if paramProject == "" && required {
		return "", &ParamError{Message: "project_slug is required"}
	}
	return paramProject, nil
}

// classifyError implements spec C8's handler failure semantics: known
// Sentry API error classes are surfaced verbatim and annotated; anything
// else is logged with a generated event ID and returned as an opaque
// message, never leaking internal error text (which could carry upstream
// response bodies) to the model.
func classifyError(logger *slog.Logger, err error) *toolcatalog.Result {
	var paramErr *ParamError
	var userErr *sentryapi.UserError
	var authErr *sentryapi.AuthError
	var notFoundErr *sentryapi.NotFoundError
	switch {
	case errors.As(err, &paramErr):
		return toolcatalog.ErrorResult(paramErr.Message)
	case errors.As(err, &userErr):
		return toolcatalog.ErrorResult(fmt.Sprintf("invalid request: %s", userErr.Body))
	case errors.As(err, &authErr):
		return toolcatalog.ErrorResult(fmt.Sprintf("access denied: %s", authErr.Error()))
	case errors.As(err, &notFoundErr):
		return toolcatalog.ErrorResult(notFoundErr.Error())
	default:
		eventID := ulid.Make().String()
		if logger != nil {
			logger.Error("tool handler internal error", "eventId", eventID, "error", err)
		}
		return toolcatalog.ErrorResult(fmt.Sprintf("Internal error (eventId=%s)", eventID))
	}
}
