package crypto

import (
	"encoding/hex"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

const HashSize = 32

var ErrInvalidHash = errors.New("invalid hash")

// Hash is a blake2b-256 digest. It marshals as lowercase hex.
type Hash [HashSize]byte

var ZeroHash Hash

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first eight hex characters, enough to tell handler
// configurations apart in logs and CLI tables.
func (h Hash) Short() string {
	return h.String()[:8]
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(b []byte) error {
	parsed, err := ParseHash(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func ParseHash(in string) (Hash, error) {
	b, err := hex.DecodeString(in)
	if err != nil {
		return ZeroHash, errors.Wrap(ErrInvalidHash, err.Error())
	}
	if len(b) != HashSize {
		return ZeroHash, errors.Wrapf(ErrInvalidHash, "got %d bytes", len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

func Blake2B256(data ...[]byte) Hash {
	// New256 only fails for oversized keys
	h, _ := blake2b.New256(nil)
	for _, chunk := range data {
		h.Write(chunk)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}
