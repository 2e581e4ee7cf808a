// Package scratch manages the per-operation scratch directory: payload
// staging during archive, bundle extraction during restore, and the state
// database. A scratch area is leased for one operation and either released
// at the end or deliberately retained for a manual retry.
package scratch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

const (
	tableFile    = "table.json"
	manifestFile = "manifest.json"
	dbFile       = "state.sqlite3"
	retainFile   = "RETAINED"
)

type Workspace struct {
	rootPath string
}

var _ model.Workspace = &Workspace{}

// New creates (or reopens) a scratch directory for the operation UID under
// root. Reopening an existing directory is how a retry resumes.
func New(root, operationUID string) (*Workspace, error) {
	path := filepath.Join(root, "adc-"+operationUID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return &Workspace{rootPath: path}, nil
}

// Open opens an existing scratch directory without creating it.
func Open(path string) (*Workspace, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", path)
	}
	return &Workspace{rootPath: path}, nil
}

func (w *Workspace) RootPath() string {
	return w.rootPath
}

func (w *Workspace) PayloadPath(index int, ext string) string {
	return filepath.Join(w.rootPath, fmt.Sprintf("part%d.img%s", index, ext))
}

func (w *Workspace) ChecksumPath(payloadPath string) string {
	return payloadPath + ".xxh"
}

func (w *Workspace) TablePath() string {
	return filepath.Join(w.rootPath, tableFile)
}

func (w *Workspace) ManifestPath() string {
	return filepath.Join(w.rootPath, manifestFile)
}

func (w *Workspace) DBPath() string {
	return filepath.Join(w.rootPath, dbFile)
}

func (w *Workspace) Retain(reason string) error {
	if err := os.WriteFile(filepath.Join(w.rootPath, retainFile), []byte(reason+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write retain marker: %w", err)
	}
	return nil
}

func (w *Workspace) Retained() (bool, string) {
	data, err := os.ReadFile(filepath.Join(w.rootPath, retainFile))
	if err != nil {
		return false, ""
	}
	return true, strings.TrimSpace(string(data))
}

func (w *Workspace) Release() error {
	if w.rootPath == "" {
		return nil
	}
	if err := os.RemoveAll(w.rootPath); err != nil {
		return fmt.Errorf("failed to remove scratch directory: %w", err)
	}
	return nil
}

// ListRetained returns the retained scratch directories under root, for
// cleanup tooling.
func ListRetained(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read scratch root: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "adc-") {
			continue
		}
		path := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(path, retainFile)); err == nil {
			out = append(out, path)
		}
	}
	return out, nil
}
