package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTruncateExcerpt(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"shorter", "abc", 5, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"one over", "abcdef", 5, "abcde..."},
		{"empty", "", 5, ""},
		{"multibyte counted as characters", "héllo wörld", 5, "héllo..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateExcerpt(tt.in, tt.n))
		})
	}
}

func TestTruncateExcerptDriftBoundary(t *testing.T) {
	exact := strings.Repeat("a", DriftExcerptLength)
	assert.Equal(t, exact, TruncateExcerpt(exact, DriftExcerptLength))

	over := strings.Repeat("a", DriftExcerptLength+1)
	got := TruncateExcerpt(over, DriftExcerptLength)
	assert.Len(t, got, DriftExcerptLength+3)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestClip(t *testing.T) {
	assert.Equal(t, "abc", Clip("abcdef", 3))
	assert.Equal(t, "ab", Clip("ab", 3))
}

func TestNewIdentityDelta(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	long := strings.Repeat("x", 800)

	d := NewIdentityDelta("old self", long, "grew", at)

	assert.Equal(t, FieldIdentity, d.FieldChanged)
	assert.Equal(t, "old self", d.Before)
	assert.Equal(t, strings.Repeat("x", 500)+"...", d.After)
	assert.Equal(t, "grew", d.Reason)
	assert.Equal(t, at, d.Timestamp)
	assert.Nil(t, d.ReflectionID)
}

func TestIdentityDocumentsGet(t *testing.T) {
	docs := IdentityDocuments{Lore: "l", Soul: "s", Identity: "i"}
	assert.Equal(t, "l", docs.Get(DocumentLore))
	assert.Equal(t, "s", docs.Get(DocumentSoul))
	assert.Equal(t, "i", docs.Get(DocumentIdentity))
	assert.Equal(t, "", docs.Get("other"))
}
