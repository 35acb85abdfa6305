package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// ContentKeySize is the size of every content key in bytes.
	ContentKeySize = 32

	// AESGCMAlgorithm identifies AES-256-GCM payload encryption.
	AESGCMAlgorithm = "aes-256-gcm"

	// SecretboxAlgorithm identifies XSalsa20-Poly1305 payload encryption.
	SecretboxAlgorithm = "xsalsa20-poly1305"

	// SecretboxNonceSize is the XSalsa20-Poly1305 nonce size in bytes.
	SecretboxNonceSize = 24
)

// ErrDecryptFailed is returned when authenticated decryption rejects a ciphertext.
var ErrDecryptFailed = errors.New("authenticated decryption failed")

// CreateContentKey generates a new random symmetric key.
func CreateContentKey() ([]byte, error) {
	key := make([]byte, ContentKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate content key: %w", err)
	}
	return key, nil
}

// SealAESGCM encrypts plaintext with AES-256-GCM under a fresh random nonce.
func SealAESGCM(key, plaintext, additionalData []byte) (nonce, ciphertext []byte, err error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return nonce, aesGCM.Seal(nil, nonce, plaintext, additionalData), nil
}

// OpenAESGCM decrypts and authenticates an AES-256-GCM ciphertext.
func OpenAESGCM(key, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(nonce) != aesGCM.NonceSize() {
		return nil, fmt.Errorf("%w: invalid nonce length %d", ErrDecryptFailed, len(nonce))
	}

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return plaintext, nil
}

// SealSecretbox encrypts plaintext with XSalsa20-Poly1305 under a fresh random nonce.
func SealSecretbox(key, plaintext []byte) (nonce, ciphertext []byte, err error) {
	if len(key) != ContentKeySize {
		return nil, nil, fmt.Errorf("invalid symmetric key length: expected %d bytes, got %d bytes", ContentKeySize, len(key))
	}

	var boxKey [ContentKeySize]byte
	copy(boxKey[:], key)

	var boxNonce [SecretboxNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, boxNonce[:]); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return boxNonce[:], secretbox.Seal(nil, plaintext, &boxNonce, &boxKey), nil
}

// OpenSecretbox decrypts and authenticates an XSalsa20-Poly1305 ciphertext.
func OpenSecretbox(key, nonce, ciphertext []byte) ([]byte, error) {
	if len(key) != ContentKeySize {
		return nil, fmt.Errorf("%w: invalid symmetric key length %d", ErrDecryptFailed, len(key))
	}
	if len(nonce) != SecretboxNonceSize {
		return nil, fmt.Errorf("%w: invalid nonce length %d", ErrDecryptFailed, len(nonce))
	}

	var boxKey [ContentKeySize]byte
	copy(boxKey[:], key)
	var boxNonce [SecretboxNonceSize]byte
	copy(boxNonce[:], nonce)

	plaintext, ok := secretbox.Open(nil, ciphertext, &boxNonce, &boxKey)
	if !ok {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != ContentKeySize {
		return nil, fmt.Errorf("invalid symmetric key length: expected %d bytes, got %d bytes", ContentKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
