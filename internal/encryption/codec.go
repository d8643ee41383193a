package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Codec encrypts and decrypts PII fields (phone numbers, caller IDs) before
// they reach storage.
//
// Invariants:
// - The key is derived once at construction and shared read-only afterwards.
// - An empty plaintext maps to an empty ciphertext and back; this is the
//   sentinel for absent optional fields, not an error.
// - Decrypt failures are per-record; callers must degrade the affected record
//   and continue, never abort a batch.
type Codec struct {
	aead cipher.AEAD
}

const (
	// kdfSalt is installation-wide. Rotating it invalidates all stored ciphertexts.
	kdfSalt       = "sipcall_salt_2025"
	kdfIterations = 100_000
	keyLen        = 32
)

var (
	ErrInvalidPhoneNumber = errors.New("encryption: invalid phone number format")
	ErrDecryptionFailed   = errors.New("encryption: decryption failed")
)

// NewCodec derives a 256-bit key from the master secret via PBKDF2-HMAC-SHA256
// and prepares an AES-GCM cipher for the process lifetime.
func NewCodec(masterSecret string) (*Codec, error) {
	if masterSecret == "" {
		return nil, errors.New("encryption: master secret is required")
	}

	key := pbkdf2.Key([]byte(masterSecret), []byte(kdfSalt), kdfIterations, keyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("encryption: cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("encryption: gcm init: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce. The nonce is prepended to
// the returned ciphertext.
func (c *Codec) Encrypt(plaintext string) ([]byte, error) {
	if plaintext == "" {
		return nil, nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("encryption: nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Corrupt or foreign-key
// ciphertexts return ErrDecryptionFailed.
func (c *Codec) Decrypt(ciphertext []byte) (string, error) {
	if len(ciphertext) == 0 {
		return "", nil
	}
	ns := c.aead.NonceSize()
	if len(ciphertext) < ns {
		return "", ErrDecryptionFailed
	}
	plain, err := c.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}

// EncryptPhoneNumber validates the number before any cryptographic work:
// after stripping separators (a leading + is permitted) the digit core must
// be 7 to 15 characters.
func (c *Codec) EncryptPhoneNumber(number string) ([]byte, error) {
	if !ValidPhoneNumber(number) {
		return nil, ErrInvalidPhoneNumber
	}
	return c.Encrypt(number)
}

// DecryptPhoneNumber is Decrypt; kept as a named operation so call sites read
// as PII handling.
func (c *Codec) DecryptPhoneNumber(ciphertext []byte) (string, error) {
	return c.Decrypt(ciphertext)
}

// ValidPhoneNumber reports whether the digit core of number (ignoring +, spaces,
// dashes, dots and parentheses) has length in [7,15].
func ValidPhoneNumber(number string) bool {
	n := len(DigitCore(number))
	return n >= 7 && n <= 15
}

// DigitCore strips everything except digits from a dialed string.
func DigitCore(number string) string {
	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteByte(byte(r))
		}
	}
	return b.String()
}

// MaskNumber renders a number safe for logs and event payloads: the first five
// characters followed by "***". Full numbers exist only in encrypted columns.
func MaskNumber(number string) string {
	if len(number) <= 5 {
		return number + "***"
	}
	return number[:5] + "***"
}
