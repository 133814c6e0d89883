package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/praneethchandra/workflowforge/core"
	"github.com/praneethchandra/workflowforge/workflow"
)

// GenericHTTPAgent drives an arbitrary REST endpoint: method defaults to
// POST (overridable via params.method); path is
// endpoint+params.endpoint; body is params.body as JSON; query string from
// params.query; headers merge the auth bundle with params.headers.
type GenericHTTPAgent struct {
	endpoint   string
	auth       *workflow.AuthBundle
	httpClient *http.Client
	logger     core.Logger
}

func NewGenericHTTPAgent(endpoint string, auth *workflow.AuthBundle, logger core.Logger) *GenericHTTPAgent {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &GenericHTTPAgent{endpoint: endpoint, auth: auth, httpClient: tracedHTTPClient(), logger: logger}
}

func (a *GenericHTTPAgent) InvokeRaw(ctx context.Context, action string, params map[string]interface{}) (workflow.AgentResponse, error) {
	start := time.Now()

	method := http.MethodPost
	if m, ok := params["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}

	path := a.endpoint
	if p, ok := params["endpoint"].(string); ok {
		path += p
	}

	if q, ok := params["query"].(map[string]interface{}); ok && len(q) > 0 {
		values := url.Values{}
		for k, v := range q {
			values.Set(k, asString(v))
		}
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		path += sep + values.Encode()
	}

	var bodyReader io.Reader
	if b, ok := params["body"]; ok {
		payload, err := json.Marshal(b)
		if err != nil {
			return workflow.AgentResponse{}, core.NewFrameworkError("agent.http.marshal", core.KindRemoteRejection, "", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, path, bodyReader)
	if err != nil {
		return workflow.AgentResponse{}, core.NewFrameworkError("agent.http.request", core.KindTransportFault, "", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range applyAuth(a.auth) {
		req.Header.Set(k, v)
	}
	if headers, ok := params["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			req.Header.Set(k, asString(v))
		}
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return workflow.AgentResponse{}, classifyHTTPErr(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return workflow.AgentResponse{}, core.NewFrameworkError("agent.http.read", core.KindTransportFault, "", err)
	}

	latency := measure(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return workflow.AgentResponse{}, classifyStatus(resp.StatusCode, respBody)
	}

	result := map[string]interface{}{}
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		if err := json.Unmarshal(respBody, &result); err != nil {
			result = map[string]interface{}{"raw": string(respBody)}
		}
	} else {
		result = map[string]interface{}{"raw": string(respBody)}
	}

	return workflow.AgentResponse{Success: true, Result: result, Latency: latency}, nil
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := json.Marshal(v)
	return string(b)
}
