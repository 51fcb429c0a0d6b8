package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new unique identifier string
func GenerateID() string {
	return uuid.New().String()
}

// IsValidID reports whether id parses as an identifier produced by GenerateID
func IsValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
