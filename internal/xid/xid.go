package xid

import "github.com/google/uuid"

// New returns a random UUIDv4 string used as a primary key.
func New() string {
	return uuid.NewString()
}

// Valid reports whether id parses as a UUID.
func Valid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
