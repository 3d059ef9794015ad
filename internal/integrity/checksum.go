package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	dErrors "docguard/pkg/domain-errors"
)

// ChecksumSize is the digest length in bytes (SHA-256).
const ChecksumSize = sha256.Size

// Checksum is the 256-bit digest declared by the issuing server.
type Checksum [ChecksumSize]byte

// ParseChecksum decodes the server's checksumSha256 field: exactly 64 hex chars.
func ParseChecksum(s string) (Checksum, error) {
	var c Checksum
	if len(s) != hex.EncodedLen(ChecksumSize) {
		return c, dErrors.New(dErrors.CodeInvalidInput, "checksum must be 64 hex characters")
	}
	if _, err := hex.Decode(c[:], []byte(strings.ToLower(s))); err != nil {
		return Checksum{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "checksum is not hex")
	}
	return c, nil
}

// Sum computes the checksum of b.
func Sum(b []byte) Checksum {
	return Checksum(sha256.Sum256(b))
}

func (c Checksum) String() string {
	return hex.EncodeToString(c[:])
}

func (c Checksum) IsZero() bool {
	return c == Checksum{}
}
