package urlutil

import (
	"net/url"
	"testing"
)

func mustParse(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse %q: %v", raw, err)
	}
	return *u
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "fragment removed",
			input:    "https://docs.example.com/guide#index",
			expected: "https://docs.example.com/guide",
		},
		{
			name:     "query parameters sorted",
			input:    "https://docs.example.com/search?q=go&a=1",
			expected: "https://docs.example.com/search?a=1&q=go",
		},
		{
			name:     "repeated keys sorted by value",
			input:    "https://example.com/?b=2&a=z&a=y",
			expected: "https://example.com/?a=y&a=z&b=2",
		},
		{
			name:     "scheme and host lowercased",
			input:    "HTTPS://Docs.Example.COM/Guide",
			expected: "https://docs.example.com/Guide",
		},
		{
			name:     "default https port removed",
			input:    "https://example.com:443/a",
			expected: "https://example.com/a",
		},
		{
			name:     "default http port removed",
			input:    "http://example.com:80/a",
			expected: "http://example.com/a",
		},
		{
			name:     "non-default port kept",
			input:    "http://example.com:8080/a",
			expected: "http://example.com:8080/a",
		},
		{
			name:     "empty path becomes root",
			input:    "https://example.com",
			expected: "https://example.com/",
		},
		{
			name:     "trailing slash kept by default",
			input:    "https://example.com/guide/",
			expected: "https://example.com/guide/",
		},
		{
			name:     "empty query dropped",
			input:    "https://example.com/a?",
			expected: "https://example.com/a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Canonicalize(mustParse(t, tt.input))
			if got.String() != tt.expected {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.input, got.String(), tt.expected)
			}
		})
	}
}

func TestCanonicalizeWith_Policies(t *testing.T) {
	in := mustParse(t, "https://example.com/guide/?utm=1#top")

	got := CanonicalizeWith(in, Policy{StripTrailingSlash: true})
	if got.String() != "https://example.com/guide" {
		t.Errorf("strip policy = %q", got.String())
	}

	got = CanonicalizeWith(in, Policy{KeepQuery: true, KeepFragment: true})
	if got.String() != "https://example.com/guide/?utm=1#top" {
		t.Errorf("keep policy = %q", got.String())
	}
}

func TestCanonicalize_Idempotent(t *testing.T) {
	inputs := []string{
		"HTTP://Example.com:80/a/b?z=1&y=2#frag",
		"https://example.com",
		"https://example.com/p?x=%20y",
	}
	for _, raw := range inputs {
		once := Canonicalize(mustParse(t, raw))
		twice := Canonicalize(once)
		if once.String() != twice.String() {
			t.Errorf("not idempotent for %q: %q vs %q", raw, once.String(), twice.String())
		}
	}
}

func TestCanonicalize_DoesNotMutateInput(t *testing.T) {
	in := mustParse(t, "HTTPS://Example.com/a?b=2&a=1#x")
	original := in.String()
	_ = Canonicalize(in)
	if in.String() != original {
		t.Errorf("input mutated: %q", in.String())
	}
}

func TestOriginKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"https://Example.com/a", "https://example.com:443"},
		{"http://example.com/a", "http://example.com:80"},
		{"http://example.com:8080/a", "http://example.com:8080"},
		{"http://[::1]:9000/", "http://[::1]:9000"},
		{"ftp://files.example.com/x", "ftp://files.example.com"},
	}
	for _, tt := range tests {
		if got := OriginKey(mustParse(t, tt.input)); got != tt.expected {
			t.Errorf("OriginKey(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
