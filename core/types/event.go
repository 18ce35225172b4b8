package types

import (
	"encoding/hex"
	"sort"
)

// Event represents a typed event emitted by a contract during execution.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Data       []byte            `json:"data,omitempty"`
}

// canonical returns the stable string form used in receipt hashing, with the
// payload hex encoded.
func (e Event) canonical() string {
	out := e.Type + ":" + hex.EncodeToString(e.Data)
	if len(e.Attributes) == 0 {
		return out
	}
	for _, k := range sortedKeys(e.Attributes) {
		out += "," + k + "=" + e.Attributes[k]
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
