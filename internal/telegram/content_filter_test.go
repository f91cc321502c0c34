package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsBlockedContent(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		blocked bool
	}{
		{"empty", "", false},
		{"plain text", "привет, как дела?", false},
		{"blocked term", "давай про porn поговорим", true},
		{"blocked term uppercase", "SEX", true},
		{"cyrillic term", "скинь порно", true},
		{"term inside word", "sussex county", true},
		{"age marker", "контент 18+ тут", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.blocked, ContainsBlockedContent(tt.text))
		})
	}
}
