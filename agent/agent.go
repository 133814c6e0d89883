// Package agent implements the uniform agent-invocation contract: three
// transport variants (chat-LLM, JSON-RPC tool, generic HTTP) plus a
// registry-backed CUSTOM variant, all reduced to the same
// invoke_raw(action, params) -> response capability so the resilience
// pipeline and scheduler never need to know which transport they're
// driving.
package agent

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/praneethchandra/workflowforge/workflow"
)

// Agent is the capability set every variant implements: a single bare
// invocation, undecorated by retry/breaker/timeout behavior (that's the
// resilience package's job, composed around this by the factory).
type Agent interface {
	InvokeRaw(ctx context.Context, action string, params map[string]interface{}) (workflow.AgentResponse, error)
}

// AgentFunc adapts a plain function to the Agent interface, used by tests
// and by the CUSTOM variant's constructor signature.
type AgentFunc func(ctx context.Context, action string, params map[string]interface{}) (workflow.AgentResponse, error)

func (f AgentFunc) InvokeRaw(ctx context.Context, action string, params map[string]interface{}) (workflow.AgentResponse, error) {
	return f(ctx, action, params)
}

func measure(start time.Time) time.Duration {
	return time.Since(start)
}

// tracedHTTPClient builds the client every variant holds: otelhttp wraps
// the transport so each outbound call gets a client span and carries W3C
// trace-context headers to the downstream service.
func tracedHTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// applyAuth returns headers contributed by an auth bundle. Never mutates
// the caller's header map.
func applyAuth(auth *workflow.AuthBundle) map[string]string {
	if auth == nil {
		return nil
	}
	headers := map[string]string{}
	switch auth.Type {
	case workflow.AuthBearer:
		headers["Authorization"] = "Bearer " + auth.Token
	case workflow.AuthAPIKey:
		header := auth.Header
		if header == "" {
			header = "X-API-Key"
		}
		headers[header] = auth.Key
	case workflow.AuthBasic:
		headers["Authorization"] = "Basic " + basicAuthValue(auth.Username, auth.Password)
	}
	return headers
}
