package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const (
	credentialEncryptionKeyEnv = "CREDGATE_ENCRYPTION_KEY"
	CredentialEncryptionPrefix = "enc:"

	keyDerivationInfo = "credgate credential encryption v1"
)

var (
	credentialCipherOnce sync.Once
	credentialCipherInst *credentialCipher
	credentialCipherErr  error
)

type credentialCipher struct {
	gcm cipher.AEAD
}

func getCredentialCipher() (*credentialCipher, error) {
	credentialCipherOnce.Do(func() {
		rawKey := strings.TrimSpace(os.Getenv(credentialEncryptionKeyEnv))
		if rawKey == "" {
			credentialCipherErr = errors.New("credential encryption key not set: " + credentialEncryptionKeyEnv)
			return
		}

		key, err := deriveCredentialKey(rawKey)
		if err != nil {
			credentialCipherErr = fmt.Errorf("derive credential key: %w", err)
			return
		}

		block, err := aes.NewCipher(key)
		if err != nil {
			credentialCipherErr = fmt.Errorf("create cipher: %w", err)
			return
		}

		gcm, err := cipher.NewGCM(block)
		if err != nil {
			credentialCipherErr = fmt.Errorf("create gcm: %w", err)
			return
		}

		credentialCipherInst = &credentialCipher{gcm: gcm}
	})

	return credentialCipherInst, credentialCipherErr
}

// deriveCredentialKey stretches the configured key material into a 256-bit
// AES key. Base64 input is decoded first so operators can supply raw random
// keys; anything else is treated as a passphrase.
func deriveCredentialKey(raw string) ([]byte, error) {
	secret := []byte(raw)
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		secret = decoded
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, secret, nil, []byte(keyDerivationInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	return key, nil
}

func EncryptCredential(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}

	cc, err := getCredentialCipher()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, cc.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	cipherText := cc.gcm.Seal(nil, nonce, []byte(plain), nil)
	payload := append(nonce, cipherText...)

	return CredentialEncryptionPrefix + base64.StdEncoding.EncodeToString(payload), nil
}

// DecryptCredential returns the plaintext value. Values without the
// encryption prefix are passed through unchanged and flagged as legacy.
func DecryptCredential(value string) (string, bool, error) {
	if value == "" {
		return "", false, nil
	}

	if !strings.HasPrefix(value, CredentialEncryptionPrefix) {
		return value, true, nil
	}

	encoded := strings.TrimPrefix(value, CredentialEncryptionPrefix)
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", true, fmt.Errorf("decode ciphertext: %w", err)
	}

	cc, err := getCredentialCipher()
	if err != nil {
		return "", false, err
	}

	nonceSize := cc.gcm.NonceSize()
	if len(data) <= nonceSize {
		return "", true, errors.New("ciphertext too short")
	}

	nonce := data[:nonceSize]
	cipherText := data[nonceSize:]

	plain, err := cc.gcm.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return "", true, fmt.Errorf("decrypt ciphertext: %w", err)
	}

	return string(plain), false, nil
}

func IsCredentialEncrypted(value string) bool {
	return strings.HasPrefix(value, CredentialEncryptionPrefix)
}

func ResetCredentialCipherForTests() {
	credentialCipherOnce = sync.Once{}
	credentialCipherInst = nil
	credentialCipherErr = nil
}
