package chat

import (
	"strings"
	"testing"
)

func TestNewChannelID(t *testing.T) {
	seen := make(map[string]struct{})
	for range 32 {
		id, err := NewChannelID()
		if err != nil {
			t.Fatalf("NewChannelID: %v", err)
		}
		if len(id) != 26 {
			t.Fatalf("expected 26-character id, got %q (%d)", id, len(id))
		}
		if id != strings.ToLower(id) {
			t.Fatalf("expected lowercase id, got %q", id)
		}
		if strings.Contains(id, "=") {
			t.Fatalf("expected no padding, got %q", id)
		}
		if _, ok := seen[id]; ok {
			t.Fatalf("generated duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}
