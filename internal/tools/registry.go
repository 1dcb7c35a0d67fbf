// Package tools implements the Tool Registry (spec §4.2): declaration,
// thread-safe registration, JSON-schema validated dispatch, priority
// ordering, and per-call timeout division.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/discord-agent/orchestrator/pkg/models"
)

// MaxToolNameLength caps tool name length to bound registry lookups.
const MaxToolNameLength = 256

// MaxToolArgsSize caps the serialized size of a tool call's arguments.
const MaxToolArgsSize = 1 << 20

// Tool is a single invocable capability exposed to the Plan node.
type Tool interface {
	// Name is the unique, stable identifier used in ToolCall.Name.
	Name() string

	// Description is passed to the planner LLM verbatim.
	Description() string

	// Schema is the tool's declared JSON schema for its arguments, used for
	// pre-dispatch argument validation.
	Schema() *jsonschema.Schema

	// SchemaJSON is the same schema as raw bytes, handed to the LLM Gateway
	// as a ToolDecl for planner tool-binding.
	SchemaJSON() []byte

	// Priority is the tool's default dispatch ordering weight; lower runs
	// first when config doesn't override it (agent.tools.<name>.priority).
	Priority() int

	// Execute runs the tool against validated arguments.
	Execute(ctx context.Context, args json.RawMessage) models.ToolExecutionResult
}

// Registry is a thread-safe collection of Tools keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Enabled returns the registered tools whose names appear in enabledNames,
// sorted by ascending priority (ties broken by name for determinism).
func (r *Registry) Enabled(enabledNames map[string]int) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(enabledNames))
	for name := range enabledNames {
		if t, ok := r.tools[name]; ok {
			out = append(out, t)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0; j-- {
			pi, pj := priorityOf(out[j], enabledNames), priorityOf(out[j-1], enabledNames)
			if pi < pj || (pi == pj && out[j].Name() < out[j-1].Name()) {
				out[j], out[j-1] = out[j-1], out[j]
			} else {
				break
			}
		}
	}
	return out
}

func priorityOf(t Tool, override map[string]int) int {
	if p, ok := override[t.Name()]; ok {
		return p
	}
	return t.Priority()
}

// Dispatch validates args against the tool's schema and executes it with the
// given timeout. A schema-validation failure or unknown tool name never
// panics the caller; it produces a ToolExecutionResult with an error kind.
func (r *Registry) Dispatch(ctx context.Context, call models.ToolCall, timeout time.Duration) (result models.ToolExecutionResult) {
	result = models.ToolExecutionResult{TaskID: call.TaskID, ToolName: call.Name, Priority: call.Priority}

	if len(call.Name) > MaxToolNameLength {
		result.ErrorKind = models.ErrorKindInvalidStructuredOutput
		result.Content = fmt.Sprintf("tool name exceeds maximum length of %d", MaxToolNameLength)
		return result
	}
	if len(call.Arguments) > MaxToolArgsSize {
		result.ErrorKind = models.ErrorKindInputTooLarge
		result.Content = fmt.Sprintf("tool arguments exceed maximum size of %d bytes", MaxToolArgsSize)
		return result
	}

	tool, ok := r.Get(call.Name)
	if !ok {
		result.ErrorKind = models.ErrorKindToolFailure
		result.Content = "tool not found: " + call.Name
		return result
	}

	if schema := tool.Schema(); schema != nil {
		var argsValue any
		if err := json.Unmarshal(call.Arguments, &argsValue); err != nil {
			result.ErrorKind = models.ErrorKindInvalidStructuredOutput
			result.Content = "arguments are not valid JSON: " + err.Error()
			return result
		}
		if err := schema.Validate(argsValue); err != nil {
			result.ErrorKind = models.ErrorKindInvalidStructuredOutput
			result.Content = "arguments failed schema validation: " + err.Error()
			return result
		}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return executeWithRecover(callCtx, tool, call.Arguments, result)
}

func executeWithRecover(ctx context.Context, tool Tool, args json.RawMessage, base models.ToolExecutionResult) (result models.ToolExecutionResult) {
	result = base

	done := make(chan models.ToolExecutionResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				panicked := base
				panicked.Success = false
				panicked.ErrorKind = models.ErrorKindToolFailure
				panicked.Content = fmt.Sprintf("tool panicked: %v", rec)
				done <- panicked
			}
		}()
		done <- tool.Execute(ctx, args)
	}()

	select {
	case <-ctx.Done():
		result.Success = false
		result.ErrorKind = models.ErrorKindTransientNetwork
		result.Content = "tool execution timed out: " + ctx.Err().Error()
		return result
	case r := <-done:
		r.TaskID = base.TaskID
		r.ToolName = base.ToolName
		r.Priority = base.Priority
		if !r.Success && r.Content == "" {
			r.SideEffect = nil
		}
		return r
	}
}

// NormalizeName lower-cases and trims a tool name for matching purposes.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
