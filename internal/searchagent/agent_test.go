package searchagent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sentry-mcp/gateway/internal/llm"
	"github.com/sentry-mcp/gateway/internal/mcpsession"
	"github.com/sentry-mcp/gateway/internal/sentryapi"
)

func newTestClient(t *testing.T, srv *httptest.Server, accessToken string) *sentryapi.Client {
	t.Helper()
	c := sentryapi.New(srv.Client(), nil)
	c.SetUserScopedBase(srv.URL)
	c.SeedRegion(accessToken, srv.URL)
	return c
}

func TestAgentRun_FinalizesOnFirstStep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]sentryapi.TraceItemAttribute{{Key: "http.status_code", Type: "string"}})
	}))
	defer srv.Close()

	mock := llm.NewMockClient(llm.MockResponse{
		StopReason: llm.StopToolUse,
		ToolCalls: []llm.ToolCall{{
			ID:   "tc-1",
			Name: finalizeToolName,
			Input: map[string]interface{}{
				"query":   "http.status_code:500",
				"fields":  []interface{}{"id", "http.status_code"},
				"dataset": "events",
			},
		}},
	})

	agent := NewAgent(newTestClient(t, srv, "tok"), mock, "test-model")
	sc := mcpsession.ServerContext{AccessToken: "tok", Constraints: mcpsession.Constraints{OrganizationSlug: "acme"}}

	text, err := agent.Run(context.Background(), sc, "events", "find 500 errors")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(text, "http.status_code:500") {
		t.Errorf("expected formatted query in output, got %q", text)
	}
}

func TestAgentRun_CallsSubtoolThenFinalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]sentryapi.TraceItemAttribute{{Key: "level", Type: "string"}})
	}))
	defer srv.Close()

	mock := llm.NewMockClient(
		llm.MockResponse{
			StopReason: llm.StopToolUse,
			ToolCalls: []llm.ToolCall{{
				ID:    "tc-1",
				Name:  "datasetAttributes",
				Input: map[string]interface{}{"dataset": "events"},
			}},
		},
		llm.MockResponse{
			StopReason: llm.StopToolUse,
			ToolCalls: []llm.ToolCall{{
				ID:   "tc-2",
				Name: finalizeToolName,
				Input: map[string]interface{}{
					"query":   "level:error",
					"fields":  []interface{}{"id"},
					"dataset": "events",
				},
			}},
		},
	)

	agent := NewAgent(newTestClient(t, srv, "tok"), mock, "test-model")
	sc := mcpsession.ServerContext{AccessToken: "tok", Constraints: mcpsession.Constraints{OrganizationSlug: "acme"}}

	text, err := agent.Run(context.Background(), sc, "events", "show me errors")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(text, "level:error") {
		t.Errorf("expected formatted query, got %q", text)
	}
	if len(mock.Calls()) != 2 {
		t.Fatalf("expected 2 LLM calls, got %d", len(mock.Calls()))
	}
}

func TestAgentRun_FinalizeErrorIsNotAGoError(t *testing.T) {
	mock := llm.NewMockClient(llm.MockResponse{
		StopReason: llm.StopToolUse,
		ToolCalls: []llm.ToolCall{{
			ID:    "tc-1",
			Name:  finalizeToolName,
			Input: map[string]interface{}{"error": "the request does not describe a searchable condition"},
		}},
	})

	agent := NewAgent(sentryapi.New(http.DefaultClient, nil), mock, "test-model")
	sc := mcpsession.ServerContext{AccessToken: "tok"}

	text, err := agent.Run(context.Background(), sc, "events", "do something vague")
	if err != nil {
		t.Fatalf("expected no Go error for a reported agent error, got: %v", err)
	}
	if !strings.Contains(text, "does not describe a searchable condition") {
		t.Errorf("expected reported error text, got %q", text)
	}
}

func TestAgentRun_NonToolResponseIsProtocolViolation(t *testing.T) {
	mock := llm.NewMockClient(llm.MockResponse{Content: "just some prose", StopReason: llm.StopEndTurn})

	agent := NewAgent(sentryapi.New(http.DefaultClient, nil), mock, "test-model")
	sc := mcpsession.ServerContext{AccessToken: "tok"}

	_, err := agent.Run(context.Background(), sc, "events", "whatever")
	if err != ErrAgentProtocolViolation {
		t.Fatalf("expected ErrAgentProtocolViolation, got %v", err)
	}
}

func TestAgentRun_InvalidDatasetRepromptsOnceThenFails(t *testing.T) {
	mock := llm.NewMockClient(
		llm.MockResponse{
			StopReason: llm.StopToolUse,
			ToolCalls: []llm.ToolCall{{
				ID:   "tc-1",
				Name: finalizeToolName,
				Input: map[string]interface{}{
					"query":   "level:error",
					"fields":  []interface{}{"id"},
					"dataset": "spans",
				},
			}},
		},
		llm.MockResponse{
			StopReason: llm.StopToolUse,
			ToolCalls: []llm.ToolCall{{
				ID:   "tc-2",
				Name: finalizeToolName,
				Input: map[string]interface{}{
					"query":   "level:error",
					"fields":  []interface{}{"id"},
					"dataset": "spans",
				},
			}},
		},
	)

	agent := NewAgent(sentryapi.New(http.DefaultClient, nil), mock, "test-model")
	sc := mcpsession.ServerContext{AccessToken: "tok"}

	_, err := agent.Run(context.Background(), sc, "events", "show me errors")
	if err == nil {
		t.Fatal("expected an error after the reprompt also fails validation")
	}
	if len(mock.Calls()) != 2 {
		t.Fatalf("expected exactly 2 LLM calls (original + one reprompt), got %d", len(mock.Calls()))
	}
}

func TestAgentRun_RateLimitedPropagates(t *testing.T) {
	mock := llm.NewMockClient(llm.MockResponse{Error: &llm.RateLimited{Provider: "openai", RetryAfterSeconds: 5}})

	agent := NewAgent(sentryapi.New(http.DefaultClient, nil), mock, "test-model")
	sc := mcpsession.ServerContext{AccessToken: "tok"}

	_, err := agent.Run(context.Background(), sc, "events", "whatever")
	var rateLimited *llm.RateLimited
	if err == nil {
		t.Fatal("expected an error")
	}
	if !asRateLimited(err, &rateLimited) {
		t.Fatalf("expected *llm.RateLimited, got %v", err)
	}
}

func TestAgentRun_NotConfigured(t *testing.T) {
	agent := &Agent{Client: sentryapi.New(http.DefaultClient, nil)}
	sc := mcpsession.ServerContext{AccessToken: "tok"}

	_, err := agent.Run(context.Background(), sc, "events", "whatever")
	if err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func asRateLimited(err error, target **llm.RateLimited) bool {
	if rl, ok := err.(*llm.RateLimited); ok {
		*target = rl
		return true
	}
	return false
}
