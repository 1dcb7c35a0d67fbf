package reminder

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestParseWhen_Relative(t *testing.T) {
	ref := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	got, err := parseWhen("in 5 minutes", ref)
	if err != nil {
		t.Fatalf("parseWhen error: %v", err)
	}
	want := ref.Add(5 * time.Minute)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseWhen_Absolute(t *testing.T) {
	ref := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	got, err := parseWhen("2026-06-01T09:00:00Z", ref)
	if err != nil {
		t.Fatalf("parseWhen error: %v", err)
	}
	want := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExecute_RejectsPastTime(t *testing.T) {
	ref := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tool := &Tool{now: fixedNow(ref)}
	args, _ := json.Marshal(input{Message: "hi", When: "2020-01-01T00:00:00Z"})

	res := tool.Execute(context.Background(), args)
	if res.Success {
		t.Fatal("expected failure for a past reminder time")
	}
	if res.SideEffect != nil {
		t.Error("failed call must carry no side effect")
	}
}

func TestExecute_ReturnsSideEffectOnSuccess(t *testing.T) {
	ref := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tool := &Tool{now: fixedNow(ref)}
	args, _ := json.Marshal(input{Message: "stretch", When: "in 10 minutes"})

	res := tool.Execute(WithContext(context.Background(), Context{ChannelRef: "c1", UserRef: "u1"}), args)
	if !res.Success {
		t.Fatalf("expected success, got error: %s", res.Content)
	}
	if res.SideEffect == nil {
		t.Fatal("expected a side effect")
	}
	if res.SideEffect.ChannelRef != "c1" || res.SideEffect.UserRef != "u1" {
		t.Errorf("side effect did not carry delivery context: %+v", res.SideEffect)
	}
	if !res.SideEffect.FireAt.Equal(ref.Add(10 * time.Minute)) {
		t.Errorf("FireAt = %v", res.SideEffect.FireAt)
	}
}
