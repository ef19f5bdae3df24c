// Package searchagent implements the gateway's natural-language search
// tools (spec C10): a bounded, structured-decision tool-use loop that
// turns a natural-language request into a literal Sentry query.
package searchagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sentry-mcp/gateway/internal/llm"
	"github.com/sentry-mcp/gateway/internal/mcpsession"
	"github.com/sentry-mcp/gateway/internal/sentryapi"
)

const (
	defaultMaxSteps = 10
	defaultTimeout  = 30 * time.Second
)

// ErrAgentProtocolViolation is returned when a step ends without either a
// finalize call or a recognized sub-tool call — the model produced
// freeform output instead of the structured decision the loop requires.
var ErrAgentProtocolViolation = errors.New("agent_protocol_violation")

// ErrNotConfigured is returned when the agent has no LLM client wired in,
// matching the spec's "AI service not configured" failure mode.
var ErrNotConfigured = errors.New("AI service not configured")

const finalizeToolName = "finalize"

// decision is the agent's structured output: either a literal query ready
// to execute, or an error explaining why one couldn't be built.
type decision struct {
	Query   string   `json:"query"`
	Sort    string   `json:"sort,omitempty"`
	Fields  []string `json:"fields"`
	Dataset string   `json:"dataset"`
	Error   string   `json:"error,omitempty"`
}

// Agent runs the bounded NL-to-query loop for search_events/search_issues.
type Agent struct {
	Client   *sentryapi.Client
	LLM      llm.Client
	Model    string
	MaxSteps int
	Timeout  time.Duration
	Logger   *slog.Logger
}

// NewAgent builds an Agent with spec defaults (10 steps, 30s).
func NewAgent(client *sentryapi.Client, llmClient llm.Client, model string) *Agent {
	return &Agent{
		Client:   client,
		LLM:      llmClient,
		Model:    model,
		MaxSteps: defaultMaxSteps,
		Timeout:  defaultTimeout,
	}
}

// Run turns naturalLanguageQuery into a literal query against dataset and
// formats the resulting decision (or the agent's own reported error) as
// markdown. Satisfies toolhandlers.SearchAgent.
func (a *Agent) Run(ctx context.Context, sc mcpsession.ServerContext, dataset, naturalLanguageQuery string) (string, error) {
	if a.LLM == nil {
		return "", ErrNotConfigured
	}

	maxSteps := a.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	subtools := a.subtoolsFor(dataset, sc.Constraints.OrganizationSlug)
	tools := toolDefinitions(subtools)

	temp := 0.1
	messages := []llm.Message{{Role: llm.RoleUser, Content: naturalLanguageQuery}}
	reprompted := false

	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("searchagent: %w", err)
		}

		resp, err := a.LLM.Chat(ctx, llm.ChatRequest{
			Model:       a.Model,
			Messages:    messages,
			System:      systemPrompt(dataset),
			Tools:       tools,
			Temperature: &temp,
			MaxTokens:   1024,
		})
		if err != nil {
			var rateLimited *llm.RateLimited
			if errors.As(err, &rateLimited) {
				return "", err
			}
			return "", fmt.Errorf("searchagent: chat: %w", err)
		}

		if resp.StopReason != llm.StopToolUse || len(resp.ToolCalls) == 0 {
			return "", ErrAgentProtocolViolation
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})

		call := resp.ToolCalls[0]

		if call.Name == finalizeToolName {
			d, valid := parseDecision(call.Input)
			if !valid {
				return "", ErrAgentProtocolViolation
			}
			if d.Error != "" {
				return fmt.Sprintf("Could not build a %s query: %s", dataset, d.Error), nil
			}
			if err := validateDecision(d, dataset); err != nil {
				if reprompted {
					return "", fmt.Errorf("searchagent: %w", err)
				}
				reprompted = true
				messages = append(messages, llm.Message{
					Role: llm.RoleUser,
					ToolResult: &llm.ToolResult{
						ToolUseID: call.ID,
						Content:   fmt.Sprintf("invalid query: %s. Call finalize again with a corrected query.", err),
						IsError:   true,
					},
				})
				continue
			}
			return formatDecision(d), nil
		}

		sub, ok := subtools[call.Name]
		if !ok {
			return "", ErrAgentProtocolViolation
		}
		result, err := sub.execute(ctx, a, sc, call.Input)
		if err != nil {
			messages = append(messages, llm.Message{
				Role:       llm.RoleUser,
				ToolResult: &llm.ToolResult{ToolUseID: call.ID, Content: err.Error(), IsError: true},
			})
			continue
		}
		messages = append(messages, llm.Message{
			Role:       llm.RoleUser,
			ToolResult: &llm.ToolResult{ToolUseID: call.ID, Content: result},
		})
	}

	return "", fmt.Errorf("searchagent: exceeded %d steps without finalizing", maxSteps)
}

func (a *Agent) subtoolsFor(dataset, orgSlug string) map[string]subtool {
	tools := map[string]subtool{}
	whoami := whoamiTool()
	tools[whoami.def.Name] = whoami

	switch dataset {
	case "issues":
		fields := issueFieldsTool()
		tools[fields.def.Name] = fields
	default:
		attrs := datasetAttributesTool(orgSlug)
		tools[attrs.def.Name] = attrs
		otel := otelSemanticsTool()
		tools[otel.def.Name] = otel
	}
	return tools
}

func toolDefinitions(subtools map[string]subtool) []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(subtools)+1)
	defs = append(defs, llm.ToolDefinition{
		Name:        finalizeToolName,
		Description: "Finalize the search: emit the literal Sentry query and its execution parameters, or report why one can't be built.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query":   map[string]interface{}{"type": "string"},
				"sort":    map[string]interface{}{"type": "string"},
				"fields":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				"dataset": map[string]interface{}{"type": "string"},
				"error":   map[string]interface{}{"type": "string"},
			},
		},
	})
	for _, t := range subtools {
		defs = append(defs, t.def)
	}
	return defs
}

func systemPrompt(dataset string) string {
	return fmt.Sprintf(
		"You translate a natural-language request into a literal Sentry search query for the %s dataset. "+
			"Use the provided tools to look up valid fields before finalizing. "+
			"Every step must call exactly one tool. When you have enough information, call finalize with "+
			"the literal query, the fields to return, and the dataset. If you cannot build a valid query, "+
			"call finalize with only the error field set.", dataset)
}

func parseDecision(input map[string]interface{}) (decision, bool) {
	raw, err := json.Marshal(input)
	if err != nil {
		return decision{}, false
	}
	var d decision
	if err := json.Unmarshal(raw, &d); err != nil {
		return decision{}, false
	}
	return d, true
}

func validateDecision(d decision, dataset string) error {
	if d.Query == "" {
		return fmt.Errorf("query is required")
	}
	if len(d.Fields) == 0 {
		return fmt.Errorf("fields is required")
	}
	if d.Dataset == "" {
		return fmt.Errorf("dataset is required")
	}
	if d.Dataset != dataset {
		return fmt.Errorf("dataset %q does not match the requested dataset %q", d.Dataset, dataset)
	}
	return nil
}

func formatDecision(d decision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Query\n\n```\n%s\n```\n\n", d.Query)
	fmt.Fprintf(&b, "- **Dataset:** %s\n", d.Dataset)
	if d.Sort != "" {
		fmt.Fprintf(&b, "- **Sort:** %s\n", d.Sort)
	}
	fmt.Fprintf(&b, "- **Fields:** %s\n", strings.Join(d.Fields, ", "))
	return b.String()
}
