// Package llm implements the LLM Gateway (spec §4.3): a provider-agnostic
// completion interface with four independently-configured logical roles
// (planner, finalizer, reflector, progress_blurb), streaming chunks, and a
// gateway-level failure taxonomy with retry/backoff.
package llm

import (
	"context"

	"github.com/discord-agent/orchestrator/pkg/models"
)

// Role names one of the four logical model slots the Orchestrator Graph
// addresses by role rather than by provider+model directly.
type Role string

const (
	RolePlanner       Role = "planner"
	RoleFinalizer     Role = "finalizer"
	RoleReflector     Role = "reflector"
	RoleProgressBlurb Role = "progress_blurb"
)

// Provider is the interface every backend (Anthropic, OpenAI, Gemini,
// Bedrock) implements.
type Provider interface {
	// Complete sends a prompt and streams back completion chunks.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider's identifier, e.g. "gemini".
	Name() string

	// SupportsTools reports whether this provider can be given ToolDecls.
	SupportsTools() bool
}

// CompletionRequest is a single completion call to a Provider.
type CompletionRequest struct {
	Model                string
	System               string
	Messages             []CompletionMessage
	Tools                []ToolDecl
	MaxTokens            int
	Temperature          float64
	EnableThinking       bool
	ThinkingBudgetTokens int
}

// CompletionMessage is one turn passed to a Provider, already flattened from
// the richer models.Message shape by the caller.
type CompletionMessage struct {
	Role        string
	Content     string
	ToolCalls   []models.ToolCall
	ToolResults []models.ToolExecutionResult
	Images      []models.ImagePart
}

// ToolDecl is a tool declaration handed to a Provider for function calling.
type ToolDecl struct {
	Name        string
	Description string
	Schema      []byte // raw JSON schema
}

// CompletionChunk is one unit of a streamed completion.
type CompletionChunk struct {
	Text         string
	ToolCall     *models.ToolCall
	Done         bool
	Err          error
	Thinking     string
	InputTokens  int
	OutputTokens int
}

// Gateway resolves a Role to a configured Provider+model and issues
// completions through it, applying the gateway's own retry/backoff and
// failure-classification policy (see errors.go).
type Gateway struct {
	routes   map[Role]route
	fallback []Provider
}

type route struct {
	provider        Provider
	model           string
	temperature     float64
	maxOutputTokens int
}

// NewGateway returns an empty Gateway; use Route to wire roles to providers.
func NewGateway() *Gateway {
	return &Gateway{routes: make(map[Role]route)}
}

// Route assigns a Role to a provider+model+sampling configuration.
func (g *Gateway) Route(role Role, provider Provider, model string, temperature float64, maxOutputTokens int) {
	g.routes[role] = route{provider: provider, model: model, temperature: temperature, maxOutputTokens: maxOutputTokens}
}

// WithFallbackChain sets the ordered list of providers retried when a role's
// primary provider fails with a retryable GatewayError.
func (g *Gateway) WithFallbackChain(providers ...Provider) *Gateway {
	g.fallback = providers
	return g
}

// Complete resolves role to its configured provider and issues req against
// it, applying req.Model/Temperature/MaxTokens overrides from the route when
// the caller leaves them zero-valued.
func (g *Gateway) Complete(ctx context.Context, role Role, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	r, ok := g.routes[role]
	if !ok {
		return nil, &GatewayError{Kind: GatewayErrorKindConfigInvalid, Message: "no provider routed for role " + string(role)}
	}

	effective := *req
	if effective.Model == "" {
		effective.Model = r.model
	}
	if effective.Temperature == 0 {
		effective.Temperature = r.temperature
	}
	if effective.MaxTokens == 0 {
		effective.MaxTokens = r.maxOutputTokens
	}

	return completeWithRetryAndFallback(ctx, r.provider, g.fallback, &effective)
}
