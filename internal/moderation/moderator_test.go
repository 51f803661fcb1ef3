// ABOUTME: Tests for the conversation message moderator
// ABOUTME: Covers masking, obfuscated spellings, and pass-through when nothing is configured

package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCensor(t *testing.T) {
	m, err := New([]string{"darn", "heck"}, "***")
	require.NoError(t, err)

	tests := []struct {
		name    string
		in      string
		want    string
		matched bool
	}{
		{"clean", "hello there", "hello there", false},
		{"single", "well darn it", "well *** it", true},
		{"case insensitive", "DARN", "***", true},
		{"leet", "what the h3ck", "what the ***", true},
		{"two terms", "darn and heck", "*** and ***", true},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, matched := m.Censor(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.matched, matched)
		})
	}
}

func TestCensor_NoTerms(t *testing.T) {
	m, err := New(nil, "")
	require.NoError(t, err)

	got, matched := m.Censor("anything goes")
	assert.Equal(t, "anything goes", got)
	assert.False(t, matched)

	var nilMod *Moderator
	got, matched = nilMod.Censor("still fine")
	assert.Equal(t, "still fine", got)
	assert.False(t, matched)
}
