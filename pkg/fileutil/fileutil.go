// Package fileutil provides case-insensitive file lookup on top of afero.
//
// Mod files are often authored on case-insensitive file systems, so a ruleset
// may say "Scripts/Armor.PAL" for a file stored as "scripts/armor.pal".
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FindFileCaseInsensitive searches for a file with the given name in the specified directory.
// The search is case-insensitive, which is useful for cross-platform compatibility.
//
// Example:
//
//	path, err := FindFileCaseInsensitive(afero.NewOsFs(), "/path/to/dir", "MyFile.TXT")
//	// Will find "myfile.txt", "MYFILE.TXT", "MyFile.txt", etc.
func FindFileCaseInsensitive(fsys afero.Fs, dir, filename string) (string, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(entry.Name(), filename) {
			return filepath.Join(dir, entry.Name()), nil
		}
	}

	return "", fmt.Errorf("file not found: %s (searched in %s): %w", filename, dir, os.ErrNotExist)
}

// Resolve returns the stored path for p, matching every path element
// case-insensitively. An exact match is preferred.
func Resolve(fsys afero.Fs, p string) (string, error) {
	p = filepath.Clean(p)
	if _, err := fsys.Stat(p); err == nil {
		return p, nil
	}

	dir, file := filepath.Split(p)
	dir = filepath.Clean(dir)
	if dir != p && dir != "." && dir != string(filepath.Separator) {
		resolved, err := resolveDir(fsys, dir)
		if err != nil {
			return "", err
		}
		dir = resolved
	}
	return FindFileCaseInsensitive(fsys, dir, file)
}

func resolveDir(fsys afero.Fs, dir string) (string, error) {
	if info, err := fsys.Stat(dir); err == nil && info.IsDir() {
		return dir, nil
	}
	parent, name := filepath.Split(dir)
	parent = filepath.Clean(parent)
	if parent != dir && parent != "." && parent != string(filepath.Separator) {
		var err error
		if parent, err = resolveDir(fsys, parent); err != nil {
			return "", err
		}
	}
	entries, err := afero.ReadDir(fsys, parent)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", parent, err)
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.EqualFold(entry.Name(), name) {
			return filepath.Join(parent, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("directory not found: %s: %w", dir, os.ErrNotExist)
}

// ReadFile reads p after resolving it case-insensitively.
func ReadFile(fsys afero.Fs, p string) ([]byte, error) {
	actual, err := Resolve(fsys, p)
	if err != nil {
		return nil, err
	}
	return afero.ReadFile(fsys, actual)
}
