package order

import (
	"strings"
	"testing"
)

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		code := GenerateCode()

		if len(code) != 5 {
			t.Fatalf("expected a 5 character code, got %q", code)
		}
		if code != strings.ToUpper(code) {
			t.Fatalf("expected an upper-case code, got %q", code)
		}
		seen[code] = true
	}

	if len(seen) < 2 {
		t.Fatal("expected varying codes")
	}
}
