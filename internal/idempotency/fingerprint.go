package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Fingerprint hashes an operation's semantic inputs into a deterministic hex
// digest. Values go through a canonical serialization first (map keys sorted,
// recursively) so the order a payload map was built in never changes the
// fingerprint.
func Fingerprint(value any) string {
	sum := sha256.Sum256([]byte(canonicalJSON(value)))
	return hex.EncodeToString(sum[:])
}

func canonicalJSON(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		// Inputs are always plain data; a marshal failure means a programming
		// error, and hashing its description keeps Fingerprint total.
		return fmt.Sprintf("!marshal:%v", err)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}

	out, err := json.Marshal(normalize(decoded))
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// normalize rebuilds decoded JSON with map keys in sorted order. Marshaling a
// Go map already sorts keys, but nested ordering of composite values inside
// slices must be made explicit too.
func normalize(value any) any {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sorted := make(map[string]any, len(v))
		for _, k := range keys {
			sorted[k] = normalize(v[k])
		}
		return sorted
	case []any:
		for i := range v {
			v[i] = normalize(v[i])
		}
		return v
	default:
		return v
	}
}
