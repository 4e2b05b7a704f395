package ident

import "github.com/google/uuid"

// New returns a globally unique identifier for conversations and
// messages. Collisions are vanishingly unlikely for the lifetime of
// the application.
func New() string {
	return uuid.NewString()
}
