package store

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// IDGenerator produces run ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// DomainTrace is the hash domain for archived trace bytes.
// The version suffix allows the binary format to change without colliding.
const DomainTrace = "rapidtrace/trace/v1"

// ContentHash returns the hex SHA-256 of data with domain separation:
// SHA256(domain + 0x00 + data).
func ContentHash(data []byte) string {
	h := sha256.New()
	h.Write([]byte(DomainTrace))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
