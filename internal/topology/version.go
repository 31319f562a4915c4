package topology

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// ComputeVersion returns the declared version, or a short content hash of
// the topology when none is declared.
func ComputeVersion(c *Config) string {
	if c.Version != "" {
		return c.Version
	}

	data, err := json.Marshal(c.Machines)
	if err != nil {
		return "invalid"
	}

	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash[:8])
}
