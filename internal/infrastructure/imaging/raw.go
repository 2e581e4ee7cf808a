package imaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

// DefaultBlockSize is the unit of raw device I/O.
const DefaultBlockSize = 4 << 20

// RawBackend copies a device region byte for byte with no filesystem
// awareness. It is always available and needs only ordered reads/writes,
// which is why the registry appends it as the universal fallback.
type RawBackend struct {
	blockSize int
}

var _ model.ImagingBackend = &RawBackend{}

func NewRawBackend(blockSize int) *RawBackend {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &RawBackend{blockSize: blockSize}
}

func (b *RawBackend) Name() string            { return "raw" }
func (b *RawBackend) Mode() model.BackendMode { return model.ModeRaw }

func (b *RawBackend) Save(ctx context.Context, device string, w io.Writer) error {
	f, err := os.Open(device)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", device, err)
	}
	defer func() { _ = f.Close() }()

	return b.copyBlocks(ctx, w, f)
}

func (b *RawBackend) Restore(ctx context.Context, r io.Reader, device string) error {
	f, err := os.OpenFile(device, os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", device, err)
	}
	defer func() { _ = f.Close() }()

	if err := b.copyBlocks(ctx, f, r); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		// Pipes and character devices used in tests don't support fsync.
		if !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTSUP) {
			return fmt.Errorf("failed to sync %s: %w", device, err)
		}
	}
	return f.Close()
}

// copyBlocks is io.CopyBuffer with a cancellation check per block, so a
// user interrupt stops the stream between blocks instead of after the
// whole device.
func (b *RawBackend) copyBlocks(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, b.blockSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := src.Read(buf)
		if n > 0 {
			wn, werr := dst.Write(buf[:n])
			if werr != nil {
				return fmt.Errorf("failed to write block: %w", werr)
			}
			if wn != n {
				return fmt.Errorf("short write: wrote %d bytes, expected %d", wn, n)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read block: %w", err)
		}
	}
}
