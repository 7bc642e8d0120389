package router

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

func TestStripHopByHopRemovesOnlyListedHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Connection", "keep-alive")
	h.Set("Content-Type", "application/json")
	h.Set("Transfer-Encoding", "chunked")

	stripHopByHop(h)

	if h.Get("Connection") != "" {
		t.Fatal("expected Connection header stripped")
	}
	if h.Get("Transfer-Encoding") != "" {
		t.Fatal("expected Transfer-Encoding header stripped")
	}
	if h.Get("Content-Type") != "application/json" {
		t.Fatal("expected Content-Type preserved")
	}
}

func TestClampMaxTokensForcesValueToOne(t *testing.T) {
	in := []byte(`{"prompt":"hi","max_tokens":256,"max_completion_tokens":512}`)
	out := clampMaxTokens(in)

	var payload map[string]any
	if err := json.Unmarshal(out, &payload); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}
	if payload["max_tokens"] != float64(1) {
		t.Fatalf("expected max_tokens clamped to 1, got %v", payload["max_tokens"])
	}
	if payload["max_completion_tokens"] != float64(1) {
		t.Fatalf("expected max_completion_tokens clamped to 1, got %v", payload["max_completion_tokens"])
	}
}

func TestClampMaxTokensLeavesMalformedBodyUntouched(t *testing.T) {
	in := []byte("not json")
	if out := clampMaxTokens(in); string(out) != string(in) {
		t.Fatalf("expected malformed body returned unchanged, got %q", out)
	}
}

func TestClampMaxTokensOmitsCompletionFieldWhenAbsent(t *testing.T) {
	in := []byte(`{"prompt":"hi","max_tokens":256}`)
	out := clampMaxTokens(in)

	var payload map[string]any
	json.Unmarshal(out, &payload)
	if _, ok := payload["max_completion_tokens"]; ok {
		t.Fatal("expected max_completion_tokens not introduced when absent from the original body")
	}
}

func TestRequestFingerprintOnlyMaterializedWhenPolicyNeedsIt(t *testing.T) {
	if got := requestFingerprint(false, []byte("  hello  ")); got != "" {
		t.Fatalf("expected empty fingerprint when policy doesn't need request text, got %q", got)
	}
	if got := requestFingerprint(true, []byte("  hello  ")); got != "hello" {
		t.Fatalf("expected trimmed fingerprint, got %q", got)
	}
}

func TestWithDeadlineFallsBackToThirtySeconds(t *testing.T) {
	if got := withDeadline(0); got != 30*time.Second {
		t.Fatalf("expected 30s default, got %v", got)
	}
	if got := withDeadline(-time.Second); got != 30*time.Second {
		t.Fatalf("expected 30s default for negative config, got %v", got)
	}
	if got := withDeadline(5 * time.Second); got != 5*time.Second {
		t.Fatalf("expected configured value passed through, got %v", got)
	}
}
