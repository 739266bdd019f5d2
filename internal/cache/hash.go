package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/flowforge/flowforge/internal/registry"
)

// ComputeRegistryHash returns the 16-hex-char prefix of the SHA-256 over a
// deterministic serialization of doc. Struct fields marshal in declaration
// order, so doc is first decoded into generic maps and marshaled again,
// which sorts the keys of every JSON object.
func ComputeRegistryHash(doc registry.Document) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", err
	}
	data, err = json.Marshal(generic)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16], nil
}
