package models

import (
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
)

func TestHashContent_Pure(t *testing.T) {
	a := HashContent("rate limit: 100 req/min")
	b := HashContent("rate limit: 100 req/min")
	if a != b {
		t.Errorf("expected identical hashes, got %s and %s", a, b)
	}

	c := HashContent("rate limit: 101 req/min")
	if a == c {
		t.Error("expected different hashes for content differing by one character")
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcde", 2},
		{string(make([]byte, 1200)), 300},
	}

	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(len=%d) = %d, want %d", len(tt.text), got, tt.want)
		}
	}
}

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		s    string
		max  int
		want string
	}{
		{"abc", 5, "abc"},
		{"abcdef", 3, "abc"},
		{"héllo", 2, "h"},
		{"héllo", 3, "hé"},
		{"日本語", 4, "日"},
		{"日本", 2, ""},
		{"abc", 0, ""},
	}

	for _, tt := range tests {
		got := TruncateUTF8(tt.s, tt.max)
		if got != tt.want {
			t.Errorf("TruncateUTF8(%q, %d) = %q, want %q", tt.s, tt.max, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("TruncateUTF8(%q, %d) returned invalid UTF-8", tt.s, tt.max)
		}
	}
}

func TestCanonicalPair_OrderIndependent(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	_, _, k1 := CanonicalPair(a, b)
	_, _, k2 := CanonicalPair(b, a)
	if k1 != k2 {
		t.Errorf("expected same key, got %s and %s", k1, k2)
	}
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy(" Split_Scope ")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if s != StrategySplitScope {
		t.Errorf("expected split_scope, got %s", s)
	}

	_, err = ParseStrategy("rewrite")
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestParseModuleType_FallsBackToOther(t *testing.T) {
	if got := ParseModuleType("api"); got != ModuleAPI {
		t.Errorf("expected api, got %s", got)
	}
	if got := ParseModuleType("novel"); got != ModuleOther {
		t.Errorf("expected other, got %s", got)
	}
}

func TestUsage_Add(t *testing.T) {
	u := Usage{}
	u.Add(Usage{Calls: 1, InputTokens: 10, OutputTokens: 5, CostUSD: 0.5})
	u.Add(Usage{Calls: 2, EmbeddingTokens: 7, CostUSD: 0.25})

	if u.Calls != 3 || u.InputTokens != 10 || u.OutputTokens != 5 || u.EmbeddingTokens != 7 {
		t.Errorf("unexpected usage %+v", u)
	}
	if u.CostUSD != 0.75 {
		t.Errorf("expected cost 0.75, got %f", u.CostUSD)
	}
	if u.IsZero() {
		t.Error("expected non-zero usage")
	}
}
