package dashboard

import (
	"crypto/sha256"
	"errors"
	"io"
	"strings"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// NewDeviceKey returns a random device key for a fresh config.
func NewDeviceKey() string {
	return strings.ToLower(ulid.Make().String() + ulid.Make().String())
}

// DeriveStoreKey stretches the device key into the key that seals the
// persisted session.
func DeriveStoreKey(deviceKey string) ([32]byte, error) {
	var out [32]byte
	if strings.TrimSpace(deviceKey) == "" {
		return out, errors.New("device key is empty")
	}
	mk := argon2.IDKey([]byte(deviceKey), []byte("sellerdesk:v1:argon2id"), 1, 16*1024, 1, 32)
	r := hkdf.New(sha256.New, mk, nil, []byte("sellerdesk:v1:session"))
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return [32]byte{}, err
	}
	for i := range mk {
		mk[i] = 0
	}
	return out, nil
}
