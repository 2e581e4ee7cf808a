// Package registry resolves imaging backend capabilities per filesystem
// kind. Availability facts are gathered once when the registry is built and
// treated as static for the rest of the run, so resolution is a pure
// function and one operation never changes its backend choice mid-flight.
package registry

import (
	"fmt"
	"os"
	"os/exec"

	"gopkg.in/yaml.v3"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

// RawBackendName is the name of the always-available raw fallback.
const RawBackendName = "raw"

// BackendConfig declares one used-block backend candidate.
type BackendConfig struct {
	// Name is the manifest-visible backend name and doubles as the lookup
	// key for the executable unless Tool overrides it.
	Name string `yaml:"name"`

	// Tool is the executable probed for availability. Defaults to Name.
	Tool string `yaml:"tool,omitempty"`

	// MountCompatible marks backends that tolerate a mounted source.
	// Used-block tools normally require exclusive access.
	MountCompatible bool `yaml:"mountCompatible,omitempty"`
}

// Config maps filesystem kinds to ordered used-block backend candidates.
// The raw fallback is implicit and always last.
type Config struct {
	Backends map[model.FilesystemKind][]BackendConfig `yaml:"backends"`
}

// DefaultConfig returns the compiled-in backend table: the partclone family
// per filesystem kind, most capable first.
func DefaultConfig() *Config {
	return &Config{
		Backends: map[model.FilesystemKind][]BackendConfig{
			model.FilesystemExt4: {
				{Name: "partclone.extfs"},
			},
			model.FilesystemNTFS: {
				{Name: "partclone.ntfs"},
				{Name: "ntfsclone"},
			},
			model.FilesystemAPFS: {
				{Name: "partclone.apfs"},
			},
			model.FilesystemHFSPlus: {
				{Name: "partclone.hfsp"},
			},
		},
	}
}

// LoadConfig reads a YAML config file. A missing path returns the default
// config.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse registry config: %w", err)
	}
	if len(cfg.Backends) == 0 {
		return DefaultConfig(), nil
	}
	return &cfg, nil
}

// Prober reports whether an imaging tool is installed.
type Prober func(tool string) bool

// ExecProber probes with exec.LookPath.
func ExecProber(tool string) bool {
	_, err := exec.LookPath(tool)
	return err == nil
}

// Registry holds the resolved capability facts for one run.
type Registry struct {
	backends map[model.FilesystemKind][]model.CapabilityBackend
}

// New builds a registry from the config, probing each tool exactly once.
func New(cfg *Config, probe Prober) *Registry {
	r := &Registry{backends: make(map[model.FilesystemKind][]model.CapabilityBackend)}
	for kind, candidates := range cfg.Backends {
		for _, c := range candidates {
			tool := c.Tool
			if tool == "" {
				tool = c.Name
			}
			r.backends[kind] = append(r.backends[kind], model.CapabilityBackend{
				Kind:            kind,
				Name:            c.Name,
				Mode:            model.ModeUsedBlock,
				Available:       probe(tool),
				MountCompatible: c.MountCompatible,
			})
		}
	}
	return r
}

// Resolve returns the ordered, usable backends for a filesystem kind and
// mount state. Unavailable backends are dropped; used-block backends are
// dropped when the source is mounted and the backend is not
// mount-compatible. The raw fallback is always appended last: it operates
// at the byte level with no filesystem awareness, so it is usable mounted
// or not.
func (r *Registry) Resolve(kind model.FilesystemKind, isMounted bool) []model.CapabilityBackend {
	var out []model.CapabilityBackend
	for _, b := range r.backends[kind] {
		if !b.Available {
			continue
		}
		if isMounted && !b.MountCompatible {
			continue
		}
		out = append(out, b)
	}
	out = append(out, model.CapabilityBackend{
		Kind:            kind,
		Name:            RawBackendName,
		Mode:            model.ModeRaw,
		Available:       true,
		MountCompatible: true,
	})
	return out
}
