package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/praneethchandra/workflowforge/core"
	"github.com/praneethchandra/workflowforge/workflow"
)

// JSONRPCAgent posts {jsonrpc:"2.0", id, method: action, params}. A non-2xx
// status is classified by status code alone; a 2xx response carrying an
// `error` member is a remote rejection.
type JSONRPCAgent struct {
	endpoint   string
	auth       *workflow.AuthBundle
	httpClient *http.Client
	logger     core.Logger
	nextID     int64
}

func NewJSONRPCAgent(endpoint string, auth *workflow.AuthBundle, logger core.Logger) *JSONRPCAgent {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &JSONRPCAgent{endpoint: endpoint, auth: auth, httpClient: tracedHTTPClient(), logger: logger}
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonrpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method,omitempty"`
	Params  interface{}     `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

func (a *JSONRPCAgent) InvokeRaw(ctx context.Context, action string, params map[string]interface{}) (workflow.AgentResponse, error) {
	start := time.Now()
	id := atomic.AddInt64(&a.nextID, 1)

	reqEnvelope := jsonrpcEnvelope{JSONRPC: "2.0", ID: id, Method: action, Params: params}
	payload, err := json.Marshal(reqEnvelope)
	if err != nil {
		return workflow.AgentResponse{}, core.NewFrameworkError("agent.jsonrpc.marshal", core.KindRemoteRejection, "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return workflow.AgentResponse{}, core.NewFrameworkError("agent.jsonrpc.request", core.KindTransportFault, "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range applyAuth(a.auth) {
		req.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return workflow.AgentResponse{}, classifyHTTPErr(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return workflow.AgentResponse{}, core.NewFrameworkError("agent.jsonrpc.read", core.KindTransportFault, "", err)
	}

	latency := measure(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return workflow.AgentResponse{}, classifyStatus(resp.StatusCode, body)
	}

	var respEnvelope jsonrpcEnvelope
	if err := json.Unmarshal(body, &respEnvelope); err != nil {
		return workflow.AgentResponse{}, core.NewFrameworkError("agent.jsonrpc.unmarshal", core.KindRemoteRejection, "", err)
	}

	if respEnvelope.Error != nil {
		return workflow.AgentResponse{}, core.NewFrameworkErrorMsg("agent.jsonrpc.invoke", core.KindRemoteRejection, "",
			respEnvelope.Error.Message)
	}

	var result map[string]interface{}
	if len(respEnvelope.Result) > 0 {
		if err := json.Unmarshal(respEnvelope.Result, &result); err != nil {
			// result may be a scalar/array rather than an object; wrap it.
			var raw interface{}
			if jsonErr := json.Unmarshal(respEnvelope.Result, &raw); jsonErr == nil {
				result = map[string]interface{}{"value": raw}
			}
		}
	}

	return workflow.AgentResponse{Success: true, Result: result, Latency: latency}, nil
}
