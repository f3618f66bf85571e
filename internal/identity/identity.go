// Package identity derives stable content-addressed keys for documents.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// PrefixLen is the number of hex characters kept from the full digest.
// 64 bits of hash keeps collisions statistically impossible at any
// realistic document count while keeping IDs short enough for URLs.
const PrefixLen = 16

const chunkSize = 4096

// Derive computes the identity for the byte stream r. The stream is hashed
// in fixed-size chunks so arbitrarily large documents never load into memory.
// Identical bytes always yield an identical identity.
func Derive(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil))[:PrefixLen], nil
}

// DeriveFile computes the identity of the file at path.
func DeriveFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return Derive(f)
}
