package config

import (
	"os"
	"path"
)

func DefaultDir() string {
	profile := os.Getenv("USERPROFILE")
	if profile != "" {
		// windows
		return path.Join(profile, "grovesign")
	}
	home := os.Getenv("HOME")
	if home != "" {
		return path.Join(home, ".config", "grovesign")
	}
	return ""
}

func DefaultConfig() string {
	filepath := DefaultDir()
	if filepath != "" {
		filepath = path.Join(filepath, "grovesign.yml")
	}
	return filepath
}
