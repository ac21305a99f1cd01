package vault

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fernet/fernet-go"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// kdfIterations hardens the envelope key derivation.
	kdfIterations = 480_000
	// verifierIterations is deliberately lower: the verifier only gates
	// unlock attempts, the envelope key gates the data.
	verifierIterations = 100_000
	saltLength         = 16
)

// deriveKey derives the Fernet envelope key from the vault password.
func deriveKey(password string, salt []byte) *fernet.Key {
	raw := pbkdf2.Key([]byte(password), salt, kdfIterations, 32, sha256.New)
	var key fernet.Key
	copy(key[:], raw)
	return &key
}

// deriveVerifier produces the hex verifier stored in vault metadata.
func deriveVerifier(password string, salt []byte) string {
	raw := pbkdf2.Key([]byte(password), salt, verifierIterations, 32, sha256.New)
	return hex.EncodeToString(raw)
}

// verifierMatches compares a candidate password against the stored
// verifier in constant time.
func verifierMatches(password string, salt []byte, stored string) bool {
	candidate := deriveVerifier(password, salt)
	return hmac.Equal([]byte(candidate), []byte(stored))
}

// newSalt returns a fresh random KDF salt.
func newSalt() ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// encrypt seals plaintext into a Fernet token. Empty plaintext yields an
// empty token so optional fields stay NULL-ish.
func encrypt(key *fernet.Key, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	tok, err := fernet.EncryptAndSign([]byte(plaintext), key)
	if err != nil {
		return "", fmt.Errorf("encrypt secret: %w", err)
	}
	return string(tok), nil
}

// decrypt opens a Fernet token. TTL is not enforced; vault tokens do not
// expire.
func decrypt(key *fernet.Key, token string) (string, error) {
	if token == "" {
		return "", nil
	}
	msg := fernet.VerifyAndDecrypt([]byte(token), 0, []*fernet.Key{key})
	if msg == nil {
		return "", fmt.Errorf("token verification failed")
	}
	return string(msg), nil
}
