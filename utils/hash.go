package utils

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"
)

// RecordKey identifies a chunk by its source and content. Two chunks with the
// same key are the same record.
func RecordKey(source, content string) string {
	h, _ := blake2b.New256(nil)
	io.WriteString(h, source)
	h.Write([]byte{0})
	io.WriteString(h, content)
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// SourceKey is a short stable identifier for a source path or URL.
func SourceKey(source string) string {
	sum := blake2b.Sum256([]byte(source))
	return hex.EncodeToString(sum[:8])
}

// FingerprintFile hashes a file's bytes.
func FingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h, _ := blake2b.New256(nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
