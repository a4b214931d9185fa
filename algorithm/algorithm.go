// Package algorithm defines the signing backend capability and the registry
// that maps algorithm identifiers to backends for a benchmark run.
package algorithm

import (
	"errors"
	"io"
	"strconv"
)

// Family groups algorithms by their underlying construction.
type Family string

const (
	Classical   Family = "classical"
	Lattice     Family = "lattice"
	HashBased   Family = "hash-based"
	NTRULattice Family = "ntru-lattice"
)

var (
	ErrUnknownAlgorithm   = errors.New("unknown algorithm")
	ErrDuplicateAlgorithm = errors.New("duplicate algorithm")
	ErrInvalidSpec        = errors.New("invalid algorithm spec")
)

// Keypair holds encoded key material. Sizes vary per algorithm.
type Keypair struct {
	PublicKey []byte
	SecretKey []byte
}

// Backend is the capability every signature scheme provides to the harness.
//
// Verify must report malformed keys, messages, or signatures as false rather
// than returning an error or panicking.
type Backend interface {
	GenerateKeypair(rand io.Reader) (Keypair, error)
	Sign(secretKey, message []byte) ([]byte, error)
	Verify(publicKey, message, signature []byte) bool
}

// Spec describes a registered algorithm.
type Spec struct {
	ID     string
	Family Family
	// SecurityLevel is the NIST PQC security category, 1 to 5. Classical
	// schemes have no category and use 0.
	SecurityLevel int
	Backend       Backend
}

// FormatLevel renders a security level for tables, "-" when unrated.
func FormatLevel(level int) string {
	if level <= 0 {
		return "-"
	}

	return strconv.Itoa(level)
}
