package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractScore(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"plain decimal", "0.83", 0.83},
		{"decimal with trailing text", "The relevance score is 0.75 out of 1", 0.75},
		{"integer", "1", 1},
		{"zero", "0", 0},
		{"json object", `{"score": 0.42}`, 0.42},
		{"json object with whitespace", "  {\"score\": 0.9}  ", 0.9},
		{"out of range clamps high", "3.5", 1},
		{"json object out of range clamps low", `{"score": -1}`, 0},
		{"no number defaults neutral", "I cannot tell", defaultScore},
		{"empty defaults neutral", "", defaultScore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractScore(tt.text))
		})
	}
}
