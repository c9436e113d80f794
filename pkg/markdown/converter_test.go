package markdown

import (
	"strings"
	"testing"
)

func TestToTelegramHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
		excludes []string
	}{
		{
			name:     "empty input",
			input:    "",
			contains: nil,
		},
		{
			name:     "bold and italic",
			input:    "**up** and *running*",
			contains: []string{"<b>up</b>", "<i>running</i>"},
			excludes: []string{"<strong>", "<em>"},
		},
		{
			name:     "lists become bullets",
			input:    "- tracked: 3\n- queued: 1",
			contains: []string{"• tracked: 3", "• queued: 1"},
			excludes: []string{"<ul>", "<li>"},
		},
		{
			name:     "headings are stripped",
			input:    "# Agent status\n\nok",
			contains: []string{"Agent status", "ok"},
			excludes: []string{"<h1>"},
		},
		{
			name:     "inline code survives",
			input:    "run `replai -config configs/config.yaml`",
			contains: []string{"<code>replai -config configs/config.yaml</code>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToTelegramHTML(tt.input)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("expected output to contain %q, got %q", want, got)
				}
			}
			for _, bad := range tt.excludes {
				if strings.Contains(got, bad) {
					t.Errorf("expected output to exclude %q, got %q", bad, got)
				}
			}
		})
	}
}
