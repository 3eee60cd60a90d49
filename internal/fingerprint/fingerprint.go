// Package fingerprint computes content fingerprints used for duplicate
// detection at upload time.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// Reader hashes a stream and returns the hex SHA-256 digest plus byte count.
func Reader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// File hashes a file on disk.
func File(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	return Reader(f)
}
