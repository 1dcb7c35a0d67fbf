package llm

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	name    string
	calls   int
	failN   int // number of calls to fail before succeeding
	failErr error
}

func (f *fakeProvider) Name() string        { return f.name }
func (f *fakeProvider) SupportsTools() bool { return true }

func (f *fakeProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	f.calls++
	if f.calls <= f.failN {
		return nil, f.failErr
	}
	ch := make(chan *CompletionChunk, 1)
	ch <- &CompletionChunk{Done: true}
	close(ch)
	return ch, nil
}

func TestGateway_CompleteRoutesByRole(t *testing.T) {
	p := &fakeProvider{name: "gemini"}
	g := NewGateway()
	g.Route(RolePlanner, p, "gemini-2.0-flash", 0.2, 2048)

	_, err := g.Complete(context.Background(), RolePlanner, &CompletionRequest{Messages: []CompletionMessage{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.calls != 1 {
		t.Errorf("expected 1 call, got %d", p.calls)
	}
}

func TestGateway_CompleteUnroutedRoleFails(t *testing.T) {
	g := NewGateway()
	_, err := g.Complete(context.Background(), RoleReflector, &CompletionRequest{})
	if err == nil {
		t.Fatal("expected error for unrouted role")
	}
}

func TestCompleteWithRetry_RetriesOnTransientError(t *testing.T) {
	p := &fakeProvider{name: "flaky", failN: 1, failErr: errors.New("connection reset")}
	_, err := completeWithRetry(context.Background(), p, &CompletionRequest{})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if p.calls != 2 {
		t.Errorf("expected 2 calls (1 retry), got %d", p.calls)
	}
}

func TestCompleteWithRetry_GivesUpOnNonRetryable(t *testing.T) {
	p := &fakeProvider{name: "broken", failN: 10, failErr: errors.New("invalid json schema")}
	_, err := completeWithRetry(context.Background(), p, &CompletionRequest{})
	if err == nil {
		t.Fatal("expected failure")
	}
	if p.calls != 1 {
		t.Errorf("expected no retry for non-retryable error, got %d calls", p.calls)
	}
}

func TestCompleteWithRetryAndFallback_FallsThrough(t *testing.T) {
	primary := &fakeProvider{name: "primary", failN: 10, failErr: errors.New("rate limit exceeded")}
	fallback := &fakeProvider{name: "fallback"}

	_, err := completeWithRetryAndFallback(context.Background(), primary, []Provider{fallback}, &CompletionRequest{})
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if fallback.calls != 1 {
		t.Errorf("expected fallback to be called once, got %d", fallback.calls)
	}
}
