package models

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"short message untouched", "water the plants", "water the plants"},
		{"whitespace normalized", "  water\n\tthe   plants ", "water the plants"},
		{
			"long message truncated with ellipsis",
			strings.Repeat("a", 60),
			strings.Repeat("a", 47) + "...",
		},
		{"exactly at the limit", strings.Repeat("b", 50), strings.Repeat("b", 50)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.message))
		})
	}
}

func TestDeriveTitleMultibyte(t *testing.T) {
	title := DeriveTitle(strings.Repeat("ü", 60))
	assert.True(t, utf8.ValidString(title), "truncation must not split a rune")
	assert.Equal(t, strings.Repeat("ü", 47)+"...", title)
	assert.Equal(t, 50, utf8.RuneCountInString(title))
}
