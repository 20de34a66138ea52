package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const nodeIDFile = ".node_id"

// NodeID returns the id this process announces on the cross-node change feed
// and websocket fan-out; messages carrying it are ignored on receipt. The
// override (SERVER_ID) wins. Otherwise the id stored in storagePath is reused,
// or a new one is generated and stored there. Processes sharing a storages
// folder share the id, so give each node its own folder or SERVER_ID.
//
// The error reports an id that could not be stored; the id is still usable
// for the lifetime of the process.
func NodeID(override, storagePath string) (string, error) {
	if id := strings.TrimSpace(override); id != "" {
		return id, nil
	}

	idFile := filepath.Join(storagePath, nodeIDFile)
	if data, err := os.ReadFile(idFile); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	id := "azgallery-" + uuid.NewString()
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return id, fmt.Errorf("failed to create %s: %w", storagePath, err)
	}
	if err := os.WriteFile(idFile, []byte(id), 0644); err != nil {
		return id, fmt.Errorf("failed to store node id: %w", err)
	}
	return id, nil
}
