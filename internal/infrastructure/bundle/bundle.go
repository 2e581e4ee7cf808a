// Package bundle packs a completed archive operation into a single-file
// streamable container and unpacks it again. The container is a plain tar
// stream: table.json, manifest.json, then one payload object (plus its
// checksum sidecar) per successful manifest entry, named deterministically
// by partition index. Payloads are already compressed by the pipeline, so
// the container itself adds no compression layer.
package bundle

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

const (
	tableName    = "table.json"
	manifestName = "manifest.json"
)

type Bundler struct{}

var _ model.Bundler = &Bundler{}

func New() *Bundler {
	return &Bundler{}
}

// Pack writes the bundle to outPath. Payload files referenced by the
// manifest stay untouched in the workspace, so a packaging failure leaves
// them available for manual recovery.
func (b *Bundler) Pack(ws model.Workspace, manifest *model.Manifest, outPath string) error {
	if err := b.pack(ws, manifest, outPath); err != nil {
		return fmt.Errorf("%w: %w", model.ErrPackaging, err)
	}
	return nil
}

func (b *Bundler) pack(ws model.Workspace, manifest *model.Manifest, outPath string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create bundle: %w", err)
	}
	defer func() { _ = out.Close() }()

	tw := tar.NewWriter(out)

	if err := addFile(tw, ws.TablePath(), tableName); err != nil {
		return err
	}
	if err := addFile(tw, ws.ManifestPath(), manifestName); err != nil {
		return err
	}
	for _, e := range manifest.Successful() {
		payload := filepath.Join(ws.RootPath(), e.PayloadFilename)
		if err := addFile(tw, payload, e.PayloadFilename); err != nil {
			return err
		}
		sidecar := ws.ChecksumPath(payload)
		if err := addFile(tw, sidecar, filepath.Base(sidecar)); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finalize bundle: %w", err)
	}
	return out.Close()
}

func addFile(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	header := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    info.Size(),
		ModTime: info.ModTime().Truncate(time.Second),
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write header for %s: %w", name, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Unpack extracts the bundle into the workspace and returns the table
// snapshot and manifest. An unreadable bundle, a missing or unparsable
// manifest, or a manifest with zero successful entries all fail with
// model.ErrCorruptArchive: such an archive is not a restorable unit.
func (b *Bundler) Unpack(archivePath string, ws model.Workspace) (*model.PartitionTable, *model.Manifest, error) {
	in, err := os.Open(archivePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() { _ = in.Close() }()

	tr := tar.NewReader(in)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: failed to read archive: %w", model.ErrCorruptArchive, err)
		}
		name := filepath.Base(filepath.Clean(header.Name))
		if name == "." || name == ".." {
			return nil, nil, fmt.Errorf("%w: bad member name %q", model.ErrCorruptArchive, header.Name)
		}
		dest := filepath.Join(ws.RootPath(), name)
		if err := writeMember(dest, tr); err != nil {
			return nil, nil, fmt.Errorf("failed to extract %s: %w", name, err)
		}
	}

	table, err := readTable(ws.TablePath())
	if err != nil {
		return nil, nil, err
	}
	manifest, err := readManifest(ws.ManifestPath())
	if err != nil {
		return nil, nil, err
	}
	return table, manifest, nil
}

func writeMember(dest string, r io.Reader) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if _, err := io.Copy(f, r); err != nil {
		return err
	}
	return f.Close()
}

func readTable(path string) (*model.PartitionTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: missing table snapshot", model.ErrCorruptArchive)
		}
		return nil, err
	}
	var table model.PartitionTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("%w: unreadable table snapshot: %w", model.ErrCorruptArchive, err)
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid table snapshot: %w", model.ErrCorruptArchive, err)
	}
	return &table, nil
}

func readManifest(path string) (*model.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: missing manifest", model.ErrCorruptArchive)
		}
		return nil, err
	}
	var manifest model.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w: unreadable manifest: %w", model.ErrCorruptArchive, err)
	}
	if len(manifest.Successful()) == 0 {
		return nil, fmt.Errorf("%w: manifest has no successful entries", model.ErrCorruptArchive)
	}
	return &manifest, nil
}
