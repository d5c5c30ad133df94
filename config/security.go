package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// A vmeflow runtime config is a page of JSON; anything near these
// limits is not a config file.
const (
	maxConfigSize = 1 << 20 // 1MB
	maxJSONDepth  = 32
	maxPathLen    = 4096
	maxEnvVarLen  = 4096
)

// validateConfigPath rejects paths the loader should never touch.
// Absolute paths are accepted as given; relative paths must stay inside
// the working directory.
func validateConfigPath(path string) error {
	switch {
	case path == "":
		return errors.New("empty config path")
	case len(path) > maxPathLen:
		return fmt.Errorf("config path exceeds %d characters", maxPathLen)
	case strings.ContainsRune(path, 0):
		return errors.New("config path contains a null byte")
	case !strings.HasSuffix(path, ".json"):
		return fmt.Errorf("config must be a .json file: %s", path)
	case filepath.IsAbs(path):
		return nil
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("working directory: %w", err)
	}
	rel, err := filepath.Rel(cwd, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path traversal not allowed: %s resolves outside working directory", path)
	}
	return nil
}

// safeReadFile reads a config file after checking the path, that it is
// a regular file, and that the size is sane.
func safeReadFile(path string) ([]byte, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config: %w", err)
	}
	switch {
	case !info.Mode().IsRegular():
		return nil, fmt.Errorf("%s is not a regular file", path)
	case info.Size() > maxConfigSize:
		return nil, fmt.Errorf("config file is %d bytes, limit is %d", info.Size(), maxConfigSize)
	}

	return os.ReadFile(path)
}

// safeWriteFile writes a config file owner-readable only. Saved configs
// may carry NATS credentials.
func safeWriteFile(path string, data []byte) error {
	if err := validateConfigPath(path); err != nil {
		return fmt.Errorf("invalid config path: %w", err)
	}
	if len(data) > maxConfigSize {
		return fmt.Errorf("config data is %d bytes, limit is %d", len(data), maxConfigSize)
	}
	return os.WriteFile(path, data, 0600)
}

// validateEnvVar rejects override values that cannot be legitimate
// configuration. Empty means unset and is fine.
func validateEnvVar(key, value string) error {
	switch {
	case value == "":
		return nil
	case len(value) > maxEnvVarLen:
		return fmt.Errorf("environment variable %s exceeds %d characters", key, maxEnvVarLen)
	case strings.ContainsRune(value, 0):
		return fmt.Errorf("environment variable %s contains a null byte", key)
	}
	return nil
}

// validateJSONDepth walks the raw bytes counting bracket nesting before
// the document is handed to encoding/json, which has no depth limit of
// its own. Strings are skipped so brackets inside values do not count.
func validateJSONDepth(data []byte) error {
	var depth int
	var inString, escaped bool

	for _, b := range data {
		switch {
		case escaped:
			escaped = false
		case inString:
			switch b {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
		case b == '"':
			inString = true
		case b == '{' || b == '[':
			if depth++; depth > maxJSONDepth {
				return fmt.Errorf("config JSON nesting too deep: depth %d exceeds %d", depth, maxJSONDepth)
			}
		case b == '}' || b == ']':
			if depth--; depth < 0 {
				return errors.New("config JSON has an unmatched closing bracket")
			}
		}
	}

	if depth != 0 {
		return fmt.Errorf("malformed JSON: %d unclosed brackets", depth)
	}
	return nil
}
