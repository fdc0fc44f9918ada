package domain

import "strings"

// ConversationKey identifies a two-party conversation independent of who
// sent first. It is comparable and safe to use as a map key.
type ConversationKey struct {
	Low  string
	High string
}

// Key derives the canonical key for a pair of identities.
func Key(a, b string) ConversationKey {
	na, nb := Normalize(a), Normalize(b)
	if nb < na {
		na, nb = nb, na
	}
	return ConversationKey{Low: na, High: nb}
}

func (k ConversationKey) String() string {
	return k.Low + "|" + k.High
}

// Normalize folds an identity to the form used for comparisons.
func Normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// SameIdentity reports whether a and b name the same endpoint.
func SameIdentity(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
