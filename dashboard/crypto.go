package dashboard

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// sessionAAD ties a sealed session to this store format; a row copied in
// from another table or format version fails to open.
var sessionAAD = []byte("sellerdesk:v1:session")

// sealedSession is a StoredSession encrypted with XChaCha20-Poly1305, in
// the base64 columns of the session table.
type sealedSession struct {
	nonce string
	ct    string
}

func sealSession(key [32]byte, sess StoredSession) (sealedSession, error) {
	plain, err := json.Marshal(sess)
	if err != nil {
		return sealedSession{}, err
	}
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return sealedSession{}, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return sealedSession{}, err
	}
	return sealedSession{
		nonce: base64.StdEncoding.EncodeToString(nonce),
		ct:    base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, plain, sessionAAD)),
	}, nil
}

// openSession reverses sealSession. Anything that does not decrypt to a
// session under key is an AuthError, so callers fall back to signing in.
func openSession(key [32]byte, s sealedSession) (StoredSession, error) {
	unreadable := func(err error) (StoredSession, error) {
		return StoredSession{}, &AuthError{Reason: "stored session unreadable", Err: err}
	}
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return StoredSession{}, err
	}
	nonce, err := base64.StdEncoding.DecodeString(s.nonce)
	if err != nil {
		return unreadable(err)
	}
	if len(nonce) != chacha20poly1305.NonceSizeX {
		return unreadable(errors.New("invalid nonce size"))
	}
	ct, err := base64.StdEncoding.DecodeString(s.ct)
	if err != nil {
		return unreadable(err)
	}
	plain, err := aead.Open(nil, nonce, ct, sessionAAD)
	if err != nil {
		return unreadable(err)
	}
	var sess StoredSession
	if err := json.Unmarshal(plain, &sess); err != nil {
		return StoredSession{}, &AuthError{Reason: "stored session corrupt", Err: err}
	}
	return sess, nil
}
