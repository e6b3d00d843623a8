package config

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Repository holds board profiles keyed by name.
type Repository struct {
	mu       sync.RWMutex
	profiles map[string]Config
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{profiles: make(map[string]Config)}
}

// Add registers a validated profile. A later profile with the same name
// replaces the earlier one.
func (r *Repository) Add(cfg Config) error {
	if cfg.Name == "" {
		return fmt.Errorf("config: profile without name")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: profile %q: %w", cfg.Name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[cfg.Name] = cfg
	return nil
}

// Lookup returns the named profile.
func (r *Repository) Lookup(name string) (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cfg, ok := r.profiles[name]; ok {
		return cfg, nil
	}
	return Config{}, fmt.Errorf("config: no profile %q", name)
}

// Names lists the known profiles in sorted order.
func (r *Repository) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFiles parses the provided paths and adds each profile. Profiles without
// a name are named after their file.
func (r *Repository) LoadFiles(paths ...string) error {
	for _, path := range paths {
		cfg, err := Load(path)
		if err != nil {
			return err
		}
		if cfg.Name == "" || cfg.Name == Default().Name {
			cfg.Name = profileName(path)
		}
		if err := r.Add(cfg); err != nil {
			return fmt.Errorf("config: add %s: %w", path, err)
		}
	}
	return nil
}

// LoadDir recursively loads all .yaml/.yml/.json files below root.
func (r *Repository) LoadDir(root string) error {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !isProfileFile(path) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return err
	}
	return r.LoadFiles(paths...)
}

func isProfileFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

func profileName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
