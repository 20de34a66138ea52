package utils

import (
	"fmt"
	"os"
)

// CreateFolder creates every given directory, parents included.
func CreateFolder(folderPath ...string) error {
	for _, folder := range folderPath {
		if folder == "" {
			continue
		}
		if err := os.MkdirAll(folder, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", folder, err)
		}
	}
	return nil
}
