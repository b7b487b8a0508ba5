package awards

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleTiers = `
tiers:
  - id: 1
    name: Bronze
    color: "#cd7f32"
    threshold: "10"
  - id: 2
    name: Silver
    color: "#c0c0c0"
    threshold: 25.5
`

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "awards.yaml")
	if err := os.WriteFile(path, []byte(sampleTiers), 0o600); err != nil {
		t.Fatalf("write tiers: %v", err)
	}
	tiers, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load tiers: %v", err)
	}
	if len(tiers) != 2 {
		t.Fatalf("tiers = %d, want 2", len(tiers))
	}
	if tiers[1].Threshold.String() != "25.5" || tiers[0].Color != "#cd7f32" {
		t.Fatalf("tiers = %+v", tiers)
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		want string
	}{
		{"empty", "  \n", "empty"},
		{"missing name", "tiers:\n  - id: 1\n    threshold: 5\n", "name is required"},
		{"bad id", "tiers:\n  - id: 0\n    name: A\n    threshold: 5\n", "id must be positive"},
		{"duplicate id", "tiers:\n  - {id: 1, name: A, threshold: 5}\n  - {id: 1, name: B, threshold: 6}\n", "duplicate id"},
		{"bad threshold", "tiers:\n  - {id: 1, name: A, threshold: lots}\n", "threshold"},
		{"negative threshold", "tiers:\n  - {id: 1, name: A, threshold: -1}\n", "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Parse() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}
