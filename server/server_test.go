package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praneethchandra/workflowforge/agent"
	"github.com/praneethchandra/workflowforge/core"
	"github.com/praneethchandra/workflowforge/store"
	"github.com/praneethchandra/workflowforge/workflow"
)

func newTestServer(t *testing.T) (*Server, *agent.Factory) {
	t.Helper()
	f := agent.NewFactory(nil)
	f.RegisterCustomAgent("always-ok", func(workflow.AgentDescriptor, core.Logger) (agent.Agent, error) {
		return agent.AgentFunc(func(ctx context.Context, action string, params map[string]interface{}) (workflow.AgentResponse, error) {
			return workflow.AgentResponse{Success: true, Result: map[string]interface{}{"ok": true}}, nil
		}), nil
	})
	return New(nil, f, store.NewMemoryStore()), f
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitAndPollUntilTerminal(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	wf := workflow.WorkflowDescriptor{
		Name: "wf-1",
		Agents: []workflow.AgentDescriptor{
			{Name: "a1", Variant: workflow.VariantCustom, Endpoint: "n/a", Params: map[string]interface{}{"custom_variant": "always-ok"}},
		},
		Tasks: []workflow.TaskDescriptor{
			{Name: "t1", AgentName: "a1", Action: "noop"},
		},
	}
	body, err := json.Marshal(wf)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var submitResp struct {
		ExecutionID string `json:"execution_id"`
		Status      string `json:"status"`
		TotalTasks  int    `json:"total_tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitResp))
	assert.Equal(t, "queued", submitResp.Status)
	assert.Equal(t, 1, submitResp.TotalTasks)
	require.NotEmpty(t, submitResp.ExecutionID)

	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows/"+submitResp.ExecutionID, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/workflows/"+submitResp.ExecutionID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var fullResp workflow.WorkflowExecutionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fullResp))
	assert.Equal(t, workflow.WorkflowCompleted, fullResp.State)
}

func TestSubmitRejectsInvalidConfig(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	wf := workflow.WorkflowDescriptor{
		Name: "bad",
		Tasks: []workflow.TaskDescriptor{
			{Name: "t1", AgentName: "missing-agent"},
		},
	}
	body, err := json.Marshal(wf)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAgentTest(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	body, err := json.Marshal(map[string]interface{}{
		"agent": workflow.AgentDescriptor{
			Name: "a1", Variant: workflow.VariantCustom,
			Params: map[string]interface{}{"custom_variant": "always-ok"},
		},
		"action": "noop",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/test", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp workflow.AgentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}
