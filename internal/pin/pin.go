// Package pin generates and validates the 6-character human-readable PINs
// used to pair a client to a host session (spec §3, §6).
package pin

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
)

// Alphabet is the confusables-free 31-character set PINs are drawn from:
// digits and uppercase letters minus 0, O, I, 1, L (spec §6).
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// Length is the fixed PIN length.
const Length = 6

// Generate returns a uniformly random 6-character PIN over Alphabet.
func Generate() (string, error) {
	// Bytes at or above limit are rejected so that b % len(Alphabet) is
	// uniform (256 is not a multiple of 31).
	limit := 256 - 256%len(Alphabet)
	buf := make([]byte, Length)
	out := make([]byte, 0, Length)
	for len(out) < Length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("pin: generate: %w", err)
		}
		for _, b := range buf {
			if int(b) < limit && len(out) < Length {
				out = append(out, Alphabet[int(b)%len(Alphabet)])
			}
		}
	}
	return string(out), nil
}

// Valid reports whether s has the right length and every character is in
// Alphabet.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !inAlphabet(s[i]) {
			return false
		}
	}
	return true
}

// Equal compares two PINs in constant time, as required for PIN matching at
// handshake time (spec §4.3: "Host compares PIN in constant time").
func Equal(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func inAlphabet(c byte) bool {
	for i := 0; i < len(Alphabet); i++ {
		if Alphabet[i] == c {
			return true
		}
	}
	return false
}
