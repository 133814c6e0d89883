package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/praneethchandra/workflowforge/core"
	"github.com/praneethchandra/workflowforge/workflow"
)

// ChatLLMAgent posts {model, messages, max_tokens, temperature, ...params}
// as JSON to endpoint, lifting the first choice's message content to the
// top level when action == "chat_completion".
type ChatLLMAgent struct {
	endpoint   string
	auth       *workflow.AuthBundle
	httpClient *http.Client
	logger     core.Logger
}

// NewChatLLMAgent builds a ChatLLMAgent bound to one endpoint.
func NewChatLLMAgent(endpoint string, auth *workflow.AuthBundle, logger core.Logger) *ChatLLMAgent {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &ChatLLMAgent{
		endpoint:   endpoint,
		auth:       auth,
		httpClient: tracedHTTPClient(),
		logger:     logger,
	}
}

func (a *ChatLLMAgent) InvokeRaw(ctx context.Context, action string, params map[string]interface{}) (workflow.AgentResponse, error) {
	start := time.Now()

	body := map[string]interface{}{}
	for k, v := range params {
		body[k] = v
	}
	if _, ok := body["messages"]; !ok {
		if prompt, ok := params["prompt"].(string); ok {
			messages := []map[string]string{}
			if sys, ok := params["system_prompt"].(string); ok && sys != "" {
				messages = append(messages, map[string]string{"role": "system", "content": sys})
			}
			messages = append(messages, map[string]string{"role": "user", "content": prompt})
			body["messages"] = messages
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return workflow.AgentResponse{}, core.NewFrameworkError("agent.chat_llm.marshal", core.KindRemoteRejection, "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return workflow.AgentResponse{}, core.NewFrameworkError("agent.chat_llm.request", core.KindTransportFault, "", err)
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

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return workflow.AgentResponse{}, core.NewFrameworkError("agent.chat_llm.read", core.KindTransportFault, "", err)
	}

	latency := measure(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return workflow.AgentResponse{}, classifyStatus(resp.StatusCode, respBody)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return workflow.AgentResponse{}, core.NewFrameworkError("agent.chat_llm.unmarshal", core.KindRemoteRejection, "", err)
	}

	result := parsed
	if action == "chat_completion" {
		if choices, ok := parsed["choices"].([]interface{}); ok && len(choices) > 0 {
			if choice, ok := choices[0].(map[string]interface{}); ok {
				if message, ok := choice["message"].(map[string]interface{}); ok {
					lifted := map[string]interface{}{}
					for k, v := range parsed {
						lifted[k] = v
					}
					lifted["content"] = message["content"]
					result = lifted
				}
			}
		}
	}

	return workflow.AgentResponse{
		Success: true,
		Result:  result,
		Latency: latency,
		Metadata: map[string]interface{}{
			"streamed": false,
		},
	}, nil
}

func classifyHTTPErr(err error) error {
	return core.NewFrameworkError("agent.invoke", core.KindTransportFault, "", err)
}

func classifyStatus(status int, body []byte) error {
	if status >= 500 {
		return core.NewFrameworkError("agent.invoke", core.KindTransportFault, "",
			fmt.Errorf("upstream status %d: %s", status, string(body)))
	}
	return core.NewFrameworkError("agent.invoke", core.KindRemoteRejection, "",
		fmt.Errorf("upstream status %d: %s", status, string(body)))
}
