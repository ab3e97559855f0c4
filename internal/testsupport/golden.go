package testsupport

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// HashJSON returns the hex SHA-256 of v's canonical JSON encoding, used to
// assert that two runs of the engine produced byte-identical event streams
// without storing the full trace in the test.
func HashJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
