package store

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// Sha256File returns the hex sha256 of a local file.
func Sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
