// Package cryptochan implements the single PIN-derived AEAD channel used to
// protect video, audio, and handshake payloads end-to-end (spec §4.2).
package cryptochan

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const (
	// saltString and infoString are fixed per spec §4.2 — every AirCatch
	// host/client pair derives the same key for a given PIN.
	saltString = "AirCatch-E2EE-v1"
	infoString = "AirCatch-Session"

	keyLen   = 32 // AES-256
	nonceLen = 12
	tagLen   = 16

	// minCiphertextLen is nonce + tag with zero-length plaintext; anything
	// shorter cannot possibly be a valid ciphertext (spec §4.2 contract).
	minCiphertextLen = nonceLen + tagLen
)

// Channel is a single symmetric AEAD channel bound to one session's PIN. The
// zero value is a Channel with no key present; Encrypt/Decrypt are no-ops
// until DeriveKey succeeds.
type Channel struct {
	mu  sync.RWMutex
	gcm cipher.AEAD
	key []byte
}

// New returns a Channel with no key derived yet.
func New() *Channel {
	return &Channel{}
}

// DeriveKey derives a 256-bit key from the UTF-8 PIN bytes with
// HKDF-SHA-256 using the fixed salt/info strings, and installs an AES-256-GCM
// AEAD built from it. Two independent calls with the same pin produce
// byte-identical keys (testable property 2).
func (c *Channel) DeriveKey(pin string) error {
	key := make([]byte, keyLen)
	hk := hkdf.New(sha256.New, []byte(pin), []byte(saltString), []byte(infoString))
	if _, err := io.ReadFull(hk, key); err != nil {
		return errors.New("cryptochan: key derivation failed")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return errors.New("cryptochan: invalid derived key")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return errors.New("cryptochan: gcm init failed")
	}

	c.mu.Lock()
	c.key = key
	c.gcm = gcm
	c.mu.Unlock()
	return nil
}

// HasKey reports whether a key is currently present.
func (c *Channel) HasKey() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gcm != nil
}

// Encrypt returns nonce||ciphertext||tag, or (nil, false) if no key is
// present. A fresh random nonce is used on every call; nonces only need to
// be unique per key, and a random 12-byte nonce is acceptable given session
// lifetimes (spec §4.2).
func (c *Channel) Encrypt(plaintext []byte) ([]byte, bool) {
	c.mu.RLock()
	gcm := c.gcm
	c.mu.RUnlock()
	if gcm == nil {
		return nil, false
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, false
	}

	out := make([]byte, 0, nonceLen+len(plaintext)+tagLen)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, nil)
	return out, true
}

// Decrypt authenticates and decrypts a nonce||ciphertext||tag blob produced
// by Encrypt. Returns (nil, false) if no key is present, the ciphertext is
// too short to be valid, or GCM authentication fails — callers must treat
// false as "drop the packet", never surface it to the peer (spec §4.2, §7).
func (c *Channel) Decrypt(ciphertext []byte) ([]byte, bool) {
	c.mu.RLock()
	gcm := c.gcm
	c.mu.RUnlock()
	if gcm == nil || len(ciphertext) < minCiphertextLen {
		return nil, false
	}

	nonce := ciphertext[:nonceLen]
	sealed := ciphertext[nonceLen:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, false
	}
	return plaintext, true
}

// ClearKey zeroes the derived key material and removes the AEAD, so
// Encrypt/Decrypt become no-ops again (spec §4.2, §4.3 teardown).
func (c *Channel) ClearKey() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key != nil {
		zero(c.key)
		c.key = nil
	}
	c.gcm = nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// Defeats a dead-store elimination of the zeroing loop above on some
	// compilers/inliner decisions; constant-time comparison against itself
	// forces the writes to be observed.
	subtle.ConstantTimeCompare(b, b)
}
