package copilot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSuggestions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "bullets and numbering",
			raw:  "1. Tell me more about X\n- Why did you choose Y?\n- ok",
			want: []string{"Tell me more about X", "Why did you choose Y?"},
		},
		{
			name: "star bullets and blank lines",
			raw:  "\n* How would you shard this table?\n\n*   What breaks first under load?  \n",
			want: []string{"How would you shard this table?", "What breaks first under load?"},
		},
		{
			name: "exactly minimum length kept",
			raw:  "- Why Go\n- Why?",
			want: []string{"Why Go"},
		},
		{
			name: "nothing usable",
			raw:  "ok\n-\n1.",
			want: nil,
		},
		{
			name: "multi-digit numbering",
			raw:  "10. Walk me through the retry logic.",
			want: []string{"Walk me through the retry logic."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSuggestions(tt.raw, 6))
		})
	}
}

func TestParseSuggestionsCountsRunes(t *testing.T) {
	assert.Equal(t, []string{"¿Cómo?"}, ParseSuggestions("- ¿Cómo?", 6))
	assert.Empty(t, ParseSuggestions("- ¿Qué?", 6))
}
