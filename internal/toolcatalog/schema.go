package toolcatalog

import "github.com/google/jsonschema-go/jsonschema"

// ParamSchema aliases jsonschema.Schema so tool handler files outside this
// package can build schemas without importing jsonschema-go directly.
type ParamSchema = jsonschema.Schema

// stringProp builds a required or optional string property.
func stringProp(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: description}
}

// enumProp builds a string property restricted to a fixed set of values.
func enumProp(description string, values ...string) *jsonschema.Schema {
	enum := make([]any, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return &jsonschema.Schema{Type: "string", Description: description, Enum: enum}
}

// objectSchema builds an object schema from a set of properties, marking
// required as the required property names.
func objectSchema(properties map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// withOrgAndProject prepends the organization_slug/project_slug properties
// shared by almost every tool handler (spec C8's default-from-constraints
// rule) to a handler-specific property set.
func withOrgAndProject(extra map[string]*jsonschema.Schema, projectRequired bool, extraRequired ...string) *jsonschema.Schema {
	props := map[string]*jsonschema.Schema{
		"organization_slug": stringProp("Organization slug. Defaults to the session's bound organization, else the user's first accessible organization."),
		"project_slug":      stringProp("Project slug. Defaults to the session's bound project, if any."),
	}
	for k, v := range extra {
		props[k] = v
	}
	required := []string{"organization_slug"}
	if projectRequired {
		required = append(required, "project_slug")
	}
	required = append(required, extraRequired...)
	return objectSchema(props, required...)
}

// cursorProp is the shared pagination cursor property (spec C9: "no
// handler silently paginates more than one page").
func cursorProp() *jsonschema.Schema {
	return stringProp("Opaque pagination cursor from a previous call's next_cursor, if any.")
}

// NoParamsSchema is the schema for a tool that takes no arguments.
func NoParamsSchema() *jsonschema.Schema {
	return objectSchema(map[string]*jsonschema.Schema{})
}

// OrgOnlySchema is the schema for a tool whose only input is
// organization_slug, defaulted from the session's bound constraint.
func OrgOnlySchema() *jsonschema.Schema {
	return withOrgAndProject(nil, false)
}

// OrgProjectSchema is the schema for a tool requiring an organization_slug
// and project_slug, both defaulted from the session's bound constraints.
func OrgProjectSchema() *jsonschema.Schema {
	return withOrgAndProject(nil, true)
}

// WithOrgAndProject exposes withOrgAndProject to other toolcatalog-adjacent
// packages (the handler files in internal/toolhandlers) for tool-specific
// schemas that extend the shared organization_slug/project_slug pair.
func WithOrgAndProject(extra map[string]*jsonschema.Schema, projectRequired bool, extraRequired ...string) *jsonschema.Schema {
	return withOrgAndProject(extra, projectRequired, extraRequired...)
}

// StringProp exposes stringProp for tool-specific schemas built outside
// this package.
func StringProp(description string) *jsonschema.Schema { return stringProp(description) }

// EnumProp exposes enumProp for tool-specific schemas built outside this
// package.
func EnumProp(description string, values ...string) *jsonschema.Schema {
	return enumProp(description, values...)
}

// CursorProp exposes cursorProp for tool-specific schemas built outside
// this package.
func CursorProp() *jsonschema.Schema { return cursorProp() }

// ObjectSchema exposes objectSchema for tool-specific schemas built outside
// this package.
func ObjectSchema(properties map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	return objectSchema(properties, required...)
}
