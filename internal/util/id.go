package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random identifier, optionally namespaced as prefix_<hex>.
func NewID(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return raw
	}
	return prefix + "_" + raw
}

// NewUUID returns a canonical uuid string for records that are addressed by id
// from outside the service.
func NewUUID() string {
	return uuid.NewString()
}
