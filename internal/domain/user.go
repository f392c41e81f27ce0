// Package domain contains entity without logic, just meta-data
package domain

import (
	"strings"

	"github.com/google/uuid"
)

const (
	MaxDisplayNameLen = 24
	FallbackName      = "Guest"
)

type UserID string

// Identity is who a live connection speaks as.
type Identity struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"displayName"`
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in adapters.
// The name is sanitized, an empty id gets a fresh uuid.
func NewIdentity(id UserID, name string) Identity {
	if id == "" {
		id = UserID(uuid.NewString())
	}
	return Identity{ID: id, DisplayName: SanitizeName(name)}
}

// SetDisplayName renames in place; the id never changes.
func (i *Identity) SetDisplayName(name string) {
	i.DisplayName = SanitizeName(name)
}

// SanitizeName trims, truncates to MaxDisplayNameLen characters and falls
// back to FallbackName when nothing is left.
func SanitizeName(raw string) string {
	name := strings.TrimSpace(raw)
	if r := []rune(name); len(r) > MaxDisplayNameLen {
		name = string(r[:MaxDisplayNameLen])
	}
	if name == "" {
		return FallbackName
	}
	return name
}
