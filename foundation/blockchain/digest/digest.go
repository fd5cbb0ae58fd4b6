// Package digest provides the hashing helpers used to content address
// transactions and blocks.
package digest

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ZeroHash represents a hash code of zeros. It is used as the previous hash
// of the genesis block.
var ZeroHash = strings.Repeat("0", 64)

// =============================================================================

// Hash returns the hex encoded sha256 of the canonical JSON encoding of the
// value. Struct fields are encoded in declaration order and map keys are
// sorted, so the same logical value always produces the same hash.
func Hash(value any) (string, error) {
	data, err := Canonical(value)
	if err != nil {
		return "", err
	}

	return Sum(data), nil
}

// Sum returns the hex encoded sha256 of the data.
func Sum(data []byte) string {
	hash := sha256.Sum256(data)
	return common.Bytes2Hex(hash[:])
}

// Canonical returns the JSON encoding used as hash input. HTML characters
// are not escaped and there is no trailing newline.
func Canonical(value any) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return nil, err
	}

	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
