package task

import (
	"crypto/rand"
	"fmt"
)

// IDLength is the length of generated task ids.
const IDLength = 6

// MaxIDAttempts bounds collision retries during id generation before the
// caller gives up with an ID_EXHAUSTED error.
const MaxIDAttempts = 16

// idAlphabet excludes visually confusable characters (0/o, 1/l/i) so ids
// survive being read aloud or retyped from a rendered vault.
const idAlphabet = "23456789abcdefghjkmnpqrstuvwxyz"

// NewID generates a random task id of IDLength characters.
func NewID() (string, error) {
	buf := make([]byte, IDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(buf), nil
}

// GenerateID returns a fresh id that the taken predicate rejects as unused,
// retrying up to MaxIDAttempts times.
func GenerateID(taken func(string) bool) (string, error) {
	for attempt := 0; attempt < MaxIDAttempts; attempt++ {
		id, err := NewID()
		if err != nil {
			return "", err
		}
		if !taken(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("no unique id after %d attempts", MaxIDAttempts)
}
