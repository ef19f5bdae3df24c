package mcpsession

import (
	"fmt"
	"regexp"
	"strings"
)

// Constraints scopes every Sentry call made within a session to an
// organization and, optionally, a project — derived from the MCP request
// URL on every request, never persisted with the grant.
type Constraints struct {
	OrganizationSlug string
	ProjectSlug      string
}

// Key returns a stable string identifying this constraint set, used as part
// of the session identity hash.
func (c Constraints) Key() string {
	return c.OrganizationSlug + "\x00" + c.ProjectSlug
}

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,99}$`)

// reservedSegments are path segments that follow /mcp or /sse but name a
// sub-route rather than an organization slug.
var reservedSegments = map[string]bool{
	"message": true,
}

// ErrInvalidConstraint is returned when a path segment fails slug
// validation or collides with a reserved route name.
type ErrInvalidConstraint struct {
	Segment string
	Reason  string
}

func (e *ErrInvalidConstraint) Error() string {
	return fmt.Sprintf("invalid constraint segment %q: %s", e.Segment, e.Reason)
}

// ParseConstraints extracts {organizationSlug?, projectSlug?} from an MCP
// transport path. Supported shapes: "/mcp", "/mcp/{org}", "/mcp/{org}/{project}",
// and the legacy "/sse" (which never carries constraints). Extra path
// segments after project are ignored. "/mcp/message" and "/sse/message" are
// the reserved SSE reply channel and carry no constraints.
func ParseConstraints(path string) (Constraints, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return Constraints{}, nil
	}

	root := segments[0]
	if root != "mcp" && root != "sse" {
		return Constraints{}, nil
	}
	rest := segments[1:]
	if len(rest) == 0 {
		return Constraints{}, nil
	}
	if reservedSegments[rest[0]] {
		return Constraints{}, nil
	}
	if root == "sse" {
		// legacy transport: no org/project scoping even if extra segments follow
		return Constraints{}, nil
	}

	var c Constraints
	if err := validateSlug(rest[0]); err != nil {
		return Constraints{}, err
	}
	c.OrganizationSlug = rest[0]

	if len(rest) > 1 && !reservedSegments[rest[1]] {
		if err := validateSlug(rest[1]); err != nil {
			return Constraints{}, err
		}
		c.ProjectSlug = rest[1]
	}
	return c, nil
}

func validateSlug(s string) error {
	if !slugPattern.MatchString(s) {
		return &ErrInvalidConstraint{Segment: s, Reason: "must match " + slugPattern.String()}
	}
	return nil
}
