package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Metadata names the application shown in the window title.
type Metadata struct {
	Name    string
	Version string
}

// LoadMetadata reads NAME and VERSION from dir. Missing files read as empty.
func LoadMetadata(dir string) Metadata {
	return Metadata{
		Name:    readTrimmed(filepath.Join(dir, "NAME")),
		Version: readTrimmed(filepath.Join(dir, "VERSION")),
	}
}

// Title returns "<name> <version>".
func (m Metadata) Title() string {
	return strings.TrimSpace(m.Name + " " + m.Version)
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(data), " \n\r\t")
}
