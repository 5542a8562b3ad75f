// Package identity manages the persistent user ID. The ID doubles as the
// mailbox address in signaling, so it must survive restarts — a fresh ID on
// every run would orphan any call records addressed to the old one.
package identity

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LoadOrCreate loads the user ID from keyFile, or generates a new one and
// saves it on first run. Returns (id, createdNew, err). A corrupt file is
// replaced rather than treated as fatal.
func LoadOrCreate(keyFile string) (string, bool, error) {
	data, err := os.ReadFile(keyFile)
	if err == nil {
		raw := strings.TrimSpace(string(data))
		if id, err := uuid.Parse(raw); err == nil {
			return id.String(), false, nil
		}
		log.Printf("WARNING: corrupt identity at %s (generating new ID)", keyFile)
	} else if !os.IsNotExist(err) {
		return "", false, err
	}

	id := uuid.NewString()

	if dir := filepath.Dir(keyFile); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return "", false, fmt.Errorf("create identity directory: %w", err)
		}
	}
	if err := os.WriteFile(keyFile, []byte(id+"\n"), 0600); err != nil {
		return "", false, fmt.Errorf("save identity: %w", err)
	}

	return id, true, nil
}
