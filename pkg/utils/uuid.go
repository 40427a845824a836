package utils

import "github.com/google/uuid"

// IsUUID checks if the string is a valid UUID
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// Helper for IDs
func GenerateID() string {
	return uuid.New().String()
}

// GenerateOrderedID returns a time-ordered (v7) UUID. Message ids use it so
// the (sent_at, id) tie-break follows creation order within a process.
func GenerateOrderedID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
