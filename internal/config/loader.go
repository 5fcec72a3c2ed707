// Package config loads and validates braind configuration from YAML
// files and environment variables. Config files must live in a small
// set of trusted directories and carry owner-only permissions.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// maxConfigFileSize bounds how much of a config file we will read.
	maxConfigFileSize = 1 << 20 // 1MB

	envPrefix = "BRAIND_"
)

// DefaultConfigPath returns the per-user config file location.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "braind", "config.yaml"), nil
}

// allowedConfigDirs lists the directories config files may be loaded from.
func allowedConfigDirs() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}
	return []string{
		filepath.Join(home, ".config", "braind"),
		filepath.Join("/etc", "braind"),
	}, nil
}

// Load reads configuration from the default path, if present, and from
// BRAIND_* environment variables. A missing config file is not an error.
func Load() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadWithFile(path)
}

// LoadWithFile reads configuration from the given file path and from
// BRAIND_* environment variables. Environment variables win over file
// values. A missing file is not an error; an unreadable or untrusted
// one is.
func LoadWithFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		data, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if data != nil {
			if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}

	// BRAIND_SEARCH_DEFAULT_TOP_K -> search.default_top_k
	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envTransform maps BRAIND_<SECTION>_<FIELD> to <section>.<field>,
// splitting on the first underscore after the prefix so field names may
// themselves contain underscores.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return s
	}
	return parts[0] + "." + parts[1]
}

// readConfigFile opens the config file after validating its location,
// then checks ownership-sensitive properties on the open handle so the
// checks and the read cannot race against a path swap.
func readConfigFile(path string) ([]byte, error) {
	resolved, err := validateConfigPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening config file %s: %w", resolved, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat config file %s: %w", resolved, err)
	}
	if err := validateConfigFileProperties(resolved, info); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", resolved, err)
	}
	if len(data) > maxConfigFileSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrConfigTooLarge, resolved, maxConfigFileSize)
	}
	return data, nil
}

// validateConfigPath resolves symlinks and confirms the file lives in
// one of the allowed config directories.
func validateConfigPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidPath, path, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			// Not yet created; validate the literal path instead.
			resolved = abs
		} else {
			return "", fmt.Errorf("%w: resolving %s: %v", ErrInvalidPath, path, err)
		}
	}

	dirs, err := allowedConfigDirs()
	if err != nil {
		return "", err
	}
	if err := checkPathAllowed(resolved, dirs); err != nil {
		return "", err
	}
	return resolved, nil
}

func checkPathAllowed(resolved string, dirs []string) error {
	dir := filepath.Dir(resolved)
	for _, allowed := range dirs {
		if dir == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is outside the allowed config directories", ErrInvalidPath, resolved)
}

// validateConfigFileProperties rejects config files that are not
// regular, owner-only files. Config may carry API keys.
func validateConfigFileProperties(path string, info os.FileInfo) error {
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrInvalidPath, path)
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("%w: %s is %d bytes", ErrConfigTooLarge, path, info.Size())
	}
	perm := info.Mode().Perm()
	if perm != 0o600 && perm != 0o400 {
		return fmt.Errorf("%w: %s has mode %04o, want 0600 or 0400", ErrBadPermissions, path, perm)
	}
	return nil
}

// EnsureConfigDir creates the per-user config directory if needed.
func EnsureConfigDir() (string, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return dir, nil
}

// loadFromBytes parses raw YAML plus the current environment. Used by
// tests to exercise the full pipeline without touching the filesystem.
func loadFromBytes(data []byte) (*Config, error) {
	k := koanf.New(".")
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
