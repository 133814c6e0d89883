package agent

import (
	"fmt"
	"sync"

	"github.com/praneethchandra/workflowforge/core"
	"github.com/praneethchandra/workflowforge/workflow"
)

// CustomConstructor builds a custom agent from its descriptor. Registered
// ahead of time by name via RegisterCustomAgent.
type CustomConstructor func(desc workflow.AgentDescriptor, logger core.Logger) (Agent, error)

// Factory maps an agent descriptor to a constructed Agent. One Factory is
// typically shared across a whole process; its custom-variant registry is
// its only mutable state, guarded by a mutex so registration is safe to do
// from an init() in a plugin package.
type Factory struct {
	mu      sync.RWMutex
	custom  map[string]CustomConstructor
	logger  core.Logger
}

// NewFactory builds a Factory. Pass nil for logger to use a no-op.
func NewFactory(logger core.Logger) *Factory {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Factory{custom: make(map[string]CustomConstructor), logger: logger}
}

// RegisterCustomAgent adds a named constructor to the CUSTOM variant's
// plug-in table. Registering the same name twice replaces the prior
// constructor.
func (f *Factory) RegisterCustomAgent(name string, ctor CustomConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.custom[name] = ctor
}

// Build constructs the Agent for desc. For variant CUSTOM, desc.Params
// must carry a "custom_variant" string naming a constructor previously
// passed to RegisterCustomAgent; an unregistered name is a CONFIG_INVALID
// error, not a runtime surprise, so the config validator calls Known
// during validation and this constructor-time check is the second line of
// defense.
func (f *Factory) Build(desc workflow.AgentDescriptor) (Agent, error) {
	switch desc.Variant {
	case workflow.VariantChatLLM:
		return NewChatLLMAgent(desc.Endpoint, desc.Auth, f.logger), nil
	case workflow.VariantJSONRPCTool:
		return NewJSONRPCAgent(desc.Endpoint, desc.Auth, f.logger), nil
	case workflow.VariantGenericHTTP:
		return NewGenericHTTPAgent(desc.Endpoint, desc.Auth, f.logger), nil
	case workflow.VariantCustom:
		name, _ := desc.Params["custom_variant"].(string)
		f.mu.RLock()
		ctor, ok := f.custom[name]
		f.mu.RUnlock()
		if !ok {
			return nil, core.NewFrameworkErrorMsg("agent.factory.build", core.KindConfigInvalid, desc.Name,
				fmt.Sprintf("no custom agent registered under name %q", name))
		}
		return ctor(desc, f.logger)
	default:
		return nil, core.NewFrameworkErrorMsg("agent.factory.build", core.KindConfigInvalid, desc.Name,
			fmt.Sprintf("unknown agent variant %q", desc.Variant))
	}
}

// Known reports whether a custom variant name is registered, used by the
// config validator to reject an unregistered custom_variant up front.
func (f *Factory) Known(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.custom[name]
	return ok
}
