package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeyWrapAlgorithm identifies the per-recipient key wrapping scheme in envelopes.
const KeyWrapAlgorithm = "ecies-p256-hkdf-sha256-aes-256-gcm"

const (
	gcmNonceSize = 12
	wrapKeySize  = 32
	wrapInfo     = "sealed-config key wrap"
)

// ErrUnwrapFailed is returned when a wrapped key cannot be opened with the
// given private key, either because it was wrapped to a different key or
// because it was modified.
var ErrUnwrapFailed = errors.New("failed to unwrap key")

// WrapKey encrypts secret to the recipient using ECIES. It performs an
// ephemeral ECDH key agreement, derives a key-encryption key with
// HKDF-SHA256 and seals the secret with AES-GCM. The recipient fingerprint
// is bound as additional data so a wrapped key cannot be replayed under a
// different recipient entry.
//
// Format: [ephemeral key length (2 bytes)][ephemeral key][iv][ciphertext]
func WrapKey(recipient PublicKey, secret []byte) ([]byte, error) {
	if recipient.IsZero() {
		return nil, errors.New("cannot wrap to an empty public key")
	}

	// Generate ephemeral key for ECIES encryption
	ephemeralKey, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	sharedSecret, err := ephemeralKey.ECDH(recipient.key)
	if err != nil {
		return nil, fmt.Errorf("failed to derive shared secret: %w", err)
	}

	ephemeralPublicKeyBytes := ephemeralKey.PublicKey().Bytes()
	aesGCM, err := keyEncryptionCipher(sharedSecret, ephemeralPublicKeyBytes, recipient)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	fingerprint := recipient.Fingerprint()
	ciphertext := aesGCM.Seal(nil, iv, secret, fingerprint[:])

	result := make([]byte, 2+len(ephemeralPublicKeyBytes)+len(iv)+len(ciphertext))
	binary.BigEndian.PutUint16(result[0:2], uint16(len(ephemeralPublicKeyBytes)))
	copy(result[2:2+len(ephemeralPublicKeyBytes)], ephemeralPublicKeyBytes)
	copy(result[2+len(ephemeralPublicKeyBytes):2+len(ephemeralPublicKeyBytes)+len(iv)], iv)
	copy(result[2+len(ephemeralPublicKeyBytes)+len(iv):], ciphertext)

	return result, nil
}

// UnwrapKey reverses WrapKey using the recipient's private key. Any failure
// after the input has been parsed is reported as ErrUnwrapFailed.
func UnwrapKey(priv PrivateKey, wrapped []byte) ([]byte, error) {
	if priv.IsZero() {
		return nil, errors.New("cannot unwrap with an empty private key")
	}

	if len(wrapped) < 2 {
		return nil, errors.New("wrapped key too short")
	}

	ephemeralKeyLen := int(binary.BigEndian.Uint16(wrapped[0:2]))
	if len(wrapped) < 2+ephemeralKeyLen+gcmNonceSize {
		return nil, errors.New("wrapped key has invalid format")
	}

	ephemeralKeyBytes := wrapped[2 : 2+ephemeralKeyLen]
	ephemeralKey, err := ecdh.P256().NewPublicKey(ephemeralKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ephemeral public key: %v", ErrUnwrapFailed, err)
	}

	sharedSecret, err := priv.key.ECDH(ephemeralKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnwrapFailed, err)
	}

	aesGCM, err := keyEncryptionCipher(sharedSecret, ephemeralKeyBytes, priv.Public())
	if err != nil {
		return nil, err
	}

	ivStart := 2 + ephemeralKeyLen
	iv := wrapped[ivStart : ivStart+gcmNonceSize]
	ciphertext := wrapped[ivStart+gcmNonceSize:]

	fingerprint := priv.Public().Fingerprint()
	secret, err := aesGCM.Open(nil, iv, ciphertext, fingerprint[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnwrapFailed, err)
	}
	return secret, nil
}

func keyEncryptionCipher(sharedSecret, ephemeralPublicKey []byte, recipient PublicKey) (cipher.AEAD, error) {
	salt := make([]byte, 0, len(ephemeralPublicKey)+len(recipient.der))
	salt = append(salt, ephemeralPublicKey...)
	salt = append(salt, recipient.der...)

	kek := make([]byte, wrapKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, sharedSecret, salt, []byte(wrapInfo)), kek); err != nil {
		return nil, fmt.Errorf("failed to derive key encryption key: %w", err)
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
