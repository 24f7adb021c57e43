package domain

import (
	"time"
)

type DocumentKind string

const (
	DocumentLore     DocumentKind = "lore"
	DocumentSoul     DocumentKind = "soul"
	DocumentIdentity DocumentKind = "identity"
)

func ValidDocumentKind(k string) bool {
	switch DocumentKind(k) {
	case DocumentLore, DocumentSoul, DocumentIdentity:
		return true
	}
	return false
}

const (
	DriftEventInitialization = "initialization"
	DriftEventDrift          = "drift"
	DriftEventRevert         = "revert"

	FieldIdentity = "identity"

	// DriftExcerptLength bounds the before/after text kept in the drift log.
	DriftExcerptLength = 500
)

// DriftLogEntry is an append-only audit record of an identity change.
type DriftLogEntry struct {
	ID    string `json:"id"`
	Event string `json:"event"`
	IdentityDelta
}

// IdentityDocuments is the full document set for one agent.
type IdentityDocuments struct {
	Lore     string          `json:"lore"`
	Soul     string          `json:"soul"`
	Identity string          `json:"identity"`
	DriftLog []DriftLogEntry `json:"drift_log"`
}

// Get returns the text of one document kind.
func (d *IdentityDocuments) Get(kind DocumentKind) string {
	switch kind {
	case DocumentLore:
		return d.Lore
	case DocumentSoul:
		return d.Soul
	case DocumentIdentity:
		return d.Identity
	}
	return ""
}

// TruncateExcerpt keeps the first n characters of s and marks the cut with
// "...". Strings of n characters or fewer are returned unchanged.
func TruncateExcerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Clip keeps at most the first n characters of s without a marker.
func Clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// NewIdentityDelta builds the delta recorded when the identity document is
// replaced. The same value feeds the reflection record and the drift log.
func NewIdentityDelta(before, after, reason string, at time.Time) IdentityDelta {
	return IdentityDelta{
		FieldChanged: FieldIdentity,
		Before:       TruncateExcerpt(before, DriftExcerptLength),
		After:        TruncateExcerpt(after, DriftExcerptLength),
		Reason:       reason,
		Timestamp:    at,
	}
}
