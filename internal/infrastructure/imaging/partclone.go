// Package imaging provides the streaming imaging backends: the partclone
// used-block family and the raw byte-for-byte fallback. Both directions
// are forward-only streams; neither backend seeks.
package imaging

import (
	"context"
	"io"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

// UsedBlockBackend images only the filesystem blocks in use, via an
// external partclone-style tool speaking its image format on stdio.
type UsedBlockBackend struct {
	name   string
	tool   string
	runner Runner
}

var _ model.ImagingBackend = &UsedBlockBackend{}

// NewUsedBlockBackend builds a backend for a resolved capability. The tool
// defaults to the capability name.
func NewUsedBlockBackend(capability model.CapabilityBackend, tool string, runner Runner) *UsedBlockBackend {
	if tool == "" {
		tool = capability.Name
	}
	return &UsedBlockBackend{name: capability.Name, tool: tool, runner: runner}
}

func (b *UsedBlockBackend) Name() string            { return b.name }
func (b *UsedBlockBackend) Mode() model.BackendMode { return model.ModeUsedBlock }

// Save streams a used-block image of the partition device. partclone's
// clone mode: -c reads the source, -o - writes the image to stdout.
func (b *UsedBlockBackend) Save(ctx context.Context, device string, w io.Writer) error {
	return b.runner.RunOut(ctx, w, b.tool, "-c", "-s", device, "-o", "-", "-q")
}

// Restore feeds a used-block image back onto the partition device.
// partclone's restore mode: -r reads the image from stdin, -O writes the
// target device.
func (b *UsedBlockBackend) Restore(ctx context.Context, r io.Reader, device string) error {
	return b.runner.RunIn(ctx, r, b.tool, "-r", "-s", "-", "-O", device, "-q")
}
