package core

import (
	"context"
	"testing"
)

func TestEngineKinds(t *testing.T) {
	tests := []struct {
		engine      Engine
		id          string
		completion  bool
		translation bool
	}{
		{GPTJ6B, "gptj_6B", true, false},
		{GPTNeoX20B, "gptneox_20B", true, false},
		{M2M100_1_2B, "m2m100_1_2B", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := tt.engine.String(); got != tt.id {
				t.Errorf("String() = %q, want %q", got, tt.id)
			}
			if got := tt.engine.IsCompletion(); got != tt.completion {
				t.Errorf("IsCompletion() = %v, want %v", got, tt.completion)
			}
			if got := tt.engine.IsTranslation(); got != tt.translation {
				t.Errorf("IsTranslation() = %v, want %v", got, tt.translation)
			}
		})
	}
}

func TestLookupEngine(t *testing.T) {
	if e := LookupEngine("m2m100_1_2B"); !e.IsTranslation() {
		t.Errorf("m2m100_1_2B should resolve to a translation engine")
	}
	if e := LookupEngine("boris_6B"); !e.IsCompletion() {
		t.Errorf("boris_6B should resolve to a completion engine")
	}
	if e := LookupEngine("mistral_7B"); !e.IsCompletion() || e.String() != "mistral_7B" {
		t.Errorf("unknown ids should resolve to completion engines, got %v", e)
	}
}

func TestKnownEngines_ReturnsCopy(t *testing.T) {
	engines := KnownEngines()
	if len(engines) != 5 {
		t.Fatalf("len(KnownEngines()) = %d, want 5", len(engines))
	}
	engines[0].ID = "mutated"
	if KnownEngines()[0].ID != string(GPTJ6B) {
		t.Error("KnownEngines() must not expose the catalogue")
	}
}

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	if got := GetRequestID(ctx); got != "" {
		t.Errorf("GetRequestID() = %q, want empty", got)
	}
	ctx = WithRequestID(ctx, "req-123")
	if got := GetRequestID(ctx); got != "req-123" {
		t.Errorf("GetRequestID() = %q, want %q", got, "req-123")
	}
}

func TestEnsureRequestID(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if id == "" || GetRequestID(ctx) != id {
		t.Fatalf("EnsureRequestID() id = %q, context carries %q", id, GetRequestID(ctx))
	}

	same, again := EnsureRequestID(ctx)
	if again != id || same != ctx {
		t.Errorf("EnsureRequestID() replaced existing id %q with %q", id, again)
	}
}
