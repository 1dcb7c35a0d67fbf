package llm

import (
	"context"
	"time"
)

// retryBackoff and maxRetryBackoff mirror the teacher's
// executor.go exponential-backoff-with-cap constants.
const (
	retryBackoff    = 250 * time.Millisecond
	maxRetryBackoff = 8 * time.Second
	maxAttempts     = 3
)

// completeWithRetryAndFallback calls primary.Complete, retrying with
// exponential backoff on a retryable GatewayError, then falling through the
// fallback chain in order before giving up.
func completeWithRetryAndFallback(ctx context.Context, primary Provider, fallback []Provider, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	providers := append([]Provider{primary}, fallback...)

	var lastErr error
	for _, provider := range providers {
		chunks, err := completeWithRetry(ctx, provider, req)
		if err == nil {
			return chunks, nil
		}
		lastErr = err

		gwErr, ok := err.(*GatewayError)
		if ok && !gwErr.Kind.IsRetryable() {
			return nil, err
		}
	}
	return nil, lastErr
}

func completeWithRetry(ctx context.Context, provider Provider, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	backoff := retryBackoff
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		chunks, err := provider.Complete(ctx, req)
		if err == nil {
			return chunks, nil
		}

		kind := classifyGatewayError(err)
		gwErr := &GatewayError{Kind: kind, Provider: provider.Name(), Cause: err, Attempts: attempt + 1}
		lastErr = gwErr

		if !kind.IsRetryable() || attempt == maxAttempts-1 {
			return nil, gwErr
		}

		sleep := backoff
		if sleep > maxRetryBackoff {
			sleep = maxRetryBackoff
		}
		select {
		case <-ctx.Done():
			return nil, &GatewayError{Kind: GatewayErrorKindCancelled, Provider: provider.Name(), Cause: ctx.Err()}
		case <-time.After(sleep):
		}
		backoff *= 2
	}
	return nil, lastErr
}
