package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// GatewayErrorKind categorizes an LLM Gateway failure for retry logic and
// observer-facing diagnostics, paralleling models.ErrorKind (spec §7).
type GatewayErrorKind string

const (
	GatewayErrorKindTransientNetwork        GatewayErrorKind = "transient_network"
	GatewayErrorKindRateLimited             GatewayErrorKind = "rate_limited"
	GatewayErrorKindInvalidStructuredOutput GatewayErrorKind = "invalid_structured_output"
	GatewayErrorKindContextOverflow         GatewayErrorKind = "context_overflow"
	GatewayErrorKindProviderError           GatewayErrorKind = "provider_error"
	GatewayErrorKindCancelled               GatewayErrorKind = "cancelled"
	GatewayErrorKindConfigInvalid           GatewayErrorKind = "config_invalid"
)

// IsRetryable reports whether a failure of this kind is worth retrying
// against the same or a fallback provider.
func (k GatewayErrorKind) IsRetryable() bool {
	switch k {
	case GatewayErrorKindTransientNetwork, GatewayErrorKindRateLimited, GatewayErrorKindProviderError:
		return true
	default:
		return false
	}
}

// GatewayError is a structured Gateway failure.
type GatewayError struct {
	Kind     GatewayErrorKind
	Provider string
	Message  string
	Cause    error
	Attempts int
}

func (e *GatewayError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[llm:%s]", e.Kind))
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	if e.Attempts > 1 {
		parts = append(parts, fmt.Sprintf("(attempts=%d)", e.Attempts))
	}
	return strings.Join(parts, " ")
}

func (e *GatewayError) Unwrap() error { return e.Cause }

// classifyGatewayError infers a GatewayErrorKind from an arbitrary provider
// SDK error, mirroring the teacher's string-pattern classifyToolError.
func classifyGatewayError(err error) GatewayErrorKind {
	if err == nil {
		return GatewayErrorKindProviderError
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return GatewayErrorKindCancelled
	}

	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "rate limit"), strings.Contains(s, "rate_limit"), strings.Contains(s, "429"), strings.Contains(s, "too many requests"):
		return GatewayErrorKindRateLimited
	case strings.Contains(s, "timeout"), strings.Contains(s, "deadline exceeded"), strings.Contains(s, "connection"), strings.Contains(s, "network"), strings.Contains(s, "dns"), strings.Contains(s, "refused"):
		return GatewayErrorKindTransientNetwork
	case strings.Contains(s, "context length"), strings.Contains(s, "context_length"), strings.Contains(s, "maximum context"), strings.Contains(s, "too many tokens"):
		return GatewayErrorKindContextOverflow
	case strings.Contains(s, "invalid json"), strings.Contains(s, "schema"), strings.Contains(s, "malformed"):
		return GatewayErrorKindInvalidStructuredOutput
	default:
		return GatewayErrorKindProviderError
	}
}
