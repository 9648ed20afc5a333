package core

import "github.com/google/uuid"

// NewID returns a new random identifier, used as a fallback tool-call audit
// ID when a model's tool call omits one.
func NewID() string {
	return uuid.NewString()
}
