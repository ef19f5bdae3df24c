package toolhandlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sentry-mcp/gateway/internal/mcpsession"
)

type fakeSearchAgent struct {
	gotDataset string
	gotQuery   string
	result     string
	err        error
}

func (f *fakeSearchAgent) Run(_ context.Context, _ mcpsession.ServerContext, dataset, query string) (string, error) {
	f.gotDataset = dataset
	f.gotQuery = query
	return f.result, f.err
}

func TestSearchEvents_DelegatesToAgent(t *testing.T) {
	agent := &fakeSearchAgent{result: "## Results\n\n- event 1"}
	h := &Search{Agent: agent}
	sc := mcpsession.ServerContext{Constraints: mcpsession.Constraints{OrganizationSlug: "acme"}}

	params, _ := json.Marshal(map[string]string{"query": "errors in the last hour"})
	result, err := h.search("events")(context.Background(), sc, params)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if agent.gotDataset != "events" || agent.gotQuery != "errors in the last hour" {
		t.Fatalf("agent called with dataset=%q query=%q", agent.gotDataset, agent.gotQuery)
	}
	if result.Text != agent.result {
		t.Errorf("result.Text = %q, want %q", result.Text, agent.result)
	}
}

func TestSearchIssues_RequiresQuery(t *testing.T) {
	h := &Search{Agent: &fakeSearchAgent{}}
	sc := mcpsession.ServerContext{Constraints: mcpsession.Constraints{OrganizationSlug: "acme"}}

	result, err := h.search("issues")(context.Background(), sc, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected a model-readable error when query is missing")
	}
}

func TestSearchEvents_SurfacesAgentError(t *testing.T) {
	h := &Search{Agent: &fakeSearchAgent{err: errors.New("agent_protocol_violation")}}
	sc := mcpsession.ServerContext{Constraints: mcpsession.Constraints{OrganizationSlug: "acme"}}

	params, _ := json.Marshal(map[string]string{"query": "anything"})
	result, err := h.search("events")(context.Background(), sc, params)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an error result when the search agent fails")
	}
}
