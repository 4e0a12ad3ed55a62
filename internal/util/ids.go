package util

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NewID returns a random URL-safe identifier for externally visible
// resources such as builds and documents.
func NewID() (string, error) {
	return gonanoid.New()
}

// MustNewID is NewID for call sites where entropy exhaustion is not a
// recoverable condition.
func MustNewID() string {
	return gonanoid.Must()
}

// ParticipantID returns the identifier for the n-th participant admitted to
// a cascade, counting from one.
func ParticipantID(n int) string {
	return fmt.Sprintf("P_%d", n)
}

// StageID returns the identifier for the stage at ordinal n, counting from one.
func StageID(n int) string {
	return fmt.Sprintf("S%d", n)
}

// EpisodeID returns the identifier for the n-th episode in narrative order,
// counting from one.
func EpisodeID(n int) string {
	return fmt.Sprintf("E%d", n)
}

// TransactionID returns the identifier for the n-th transaction in traversal
// order, counting from one.
func TransactionID(n int) string {
	return fmt.Sprintf("T%d", n)
}
