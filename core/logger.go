package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/praneethchandra/workflowforge/telemetry"
)

// Logger is the structured logging interface every package in this module
// depends on, never a concrete logging library.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger lets a sub-package stamp its own component name into
// every record it emits without threading that name through every call.
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// NoOpLogger discards everything. The zero-configuration default.
type NoOpLogger struct{}

func (NoOpLogger) Info(string, map[string]interface{})  {}
func (NoOpLogger) Error(string, map[string]interface{}) {}
func (NoOpLogger) Warn(string, map[string]interface{})  {}
func (NoOpLogger) Debug(string, map[string]interface{}) {}
func (NoOpLogger) InfoWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) ErrorWithContext(context.Context, string, map[string]interface{}) {}
func (NoOpLogger) WarnWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) DebugWithContext(context.Context, string, map[string]interface{}) {}

// ProductionLogger writes structured JSON (or a human-readable line in
// development mode) to an io.Writer, stamping a component name and, when
// the context carries an active span, the trace/span id for correlation.
type ProductionLogger struct {
	serviceName string
	component   string
	debug       bool
	json        bool
	output      io.Writer
}

// NewProductionLogger builds a ProductionLogger. jsonFormat=false yields
// human-readable lines, the shape development mode wants; debug enables
// Debug-level output.
func NewProductionLogger(serviceName string, jsonFormat, debug bool) *ProductionLogger {
	return &ProductionLogger{
		serviceName: serviceName,
		debug:       debug,
		json:        jsonFormat,
		output:      os.Stdout,
	}
}

// WithComponent returns a logger that stamps component into every record,
// sharing the same output/format configuration.
func (p *ProductionLogger) WithComponent(component string) Logger {
	clone := *p
	clone.component = component
	return &clone
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.log(nil, "INFO", msg, fields)
}
func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.log(nil, "ERROR", msg, fields)
}
func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.log(nil, "WARN", msg, fields)
}
func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.log(nil, "DEBUG", msg, fields)
	}
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log(ctx, "INFO", msg, fields)
}
func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log(ctx, "ERROR", msg, fields)
}
func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log(ctx, "WARN", msg, fields)
}
func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.log(ctx, "DEBUG", msg, fields)
	}
}

func (p *ProductionLogger) log(ctx context.Context, level, msg string, fields map[string]interface{}) {
	timestamp := time.Now().Format(time.RFC3339)
	component := p.component
	if component == "" {
		component = "core"
	}

	var traceID, spanID string
	if ctx != nil {
		traceID, spanID = telemetry.CurrentTraceAndSpan(ctx)
	}

	if p.json {
		entry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   p.serviceName,
			"component": component,
			"message":   msg,
		}
		if traceID != "" {
			entry["trace_id"] = traceID
			entry["span_id"] = spanID
		}
		for k, v := range fields {
			entry[k] = v
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
		return
	}

	traceInfo := ""
	if traceID != "" {
		traceInfo = fmt.Sprintf("[trace=%s] ", traceID)
	}
	var fieldStr strings.Builder
	for k, v := range fields {
		fieldStr.WriteString(fmt.Sprintf(" %s=%v", k, v))
	}
	fmt.Fprintf(p.output, "%s [%s] [%s/%s] %s%s%s\n",
		timestamp, level, p.serviceName, component, traceInfo, msg, fieldStr.String())
}
