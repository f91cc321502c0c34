package interests

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValid(t *testing.T) {
	assert.True(t, Valid("books"))
	assert.True(t, Valid("it"))
	assert.True(t, Valid(" Books "), "codes are normalized before lookup")
	assert.False(t, Valid("cooking"))
	assert.False(t, Valid(""))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, []string{}},
		{"already clean", []string{"books", "it"}, []string{"books", "it"}},
		{"case and whitespace", []string{" Books ", "IT"}, []string{"books", "it"}},
		{"duplicates collapse", []string{"books", "books", "it"}, []string{"books", "it"}},
		{"unknown dropped", []string{"books", "cooking"}, []string{"books"}},
		{"all unknown", []string{"cooking", "chess"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestOverlap(t *testing.T) {
	assert.True(t, Overlap([]string{"books", "it"}, []string{"it"}))
	assert.False(t, Overlap([]string{"books"}, []string{"games"}))

	// An empty set never overlaps anything, including another empty set.
	assert.False(t, Overlap(nil, nil))
	assert.False(t, Overlap([]string{"books"}, nil))
	assert.False(t, Overlap(nil, []string{"books"}))
}

func TestToggle(t *testing.T) {
	got := Toggle(nil, "books")
	assert.Equal(t, []string{"books"}, got)

	got = Toggle(got, "it")
	assert.ElementsMatch(t, []string{"books", "it"}, got)

	got = Toggle(got, "books")
	assert.Equal(t, []string{"it"}, got)

	got = Toggle(got, "it")
	assert.Empty(t, got)
}
