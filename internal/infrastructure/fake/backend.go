package fake

import (
	"context"
	"fmt"
	"io"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

// ImagingBackend is a model.ImagingBackend over in-memory device contents.
// Save streams the configured bytes for a device; Restore collects the
// stream into Restored. FailSave injects a backend failure for one device,
// the way a non-zero imaging tool exit would surface.
type ImagingBackend struct {
	BackendName string
	BackendMode model.BackendMode

	// Contents maps partition device path -> device bytes.
	Contents map[string][]byte

	// FailSave maps device path -> injected save error.
	FailSave map[string]error

	// FailRestore maps device path -> injected restore error.
	FailRestore map[string]error

	// Restored maps device path -> bytes written by Restore, in order.
	Restored map[string][]byte

	// RestoreOrder records the device paths Restore was called with.
	RestoreOrder []string

	// SaveCalls counts Save invocations per device, for resume tests.
	SaveCalls map[string]int
}

var _ model.ImagingBackend = &ImagingBackend{}

func NewImagingBackend(name string, mode model.BackendMode) *ImagingBackend {
	return &ImagingBackend{
		BackendName: name,
		BackendMode: mode,
		Contents:    make(map[string][]byte),
		FailSave:    make(map[string]error),
		FailRestore: make(map[string]error),
		Restored:    make(map[string][]byte),
		SaveCalls:   make(map[string]int),
	}
}

func (b *ImagingBackend) Name() string { return b.BackendName }

func (b *ImagingBackend) Mode() model.BackendMode { return b.BackendMode }

func (b *ImagingBackend) Save(ctx context.Context, device string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.SaveCalls[device]++
	if err := b.FailSave[device]; err != nil {
		return err
	}
	content, ok := b.Contents[device]
	if !ok {
		return fmt.Errorf("%w: no content for device %s", model.ErrNotFound, device)
	}
	_, err := w.Write(content)
	return err
}

func (b *ImagingBackend) Restore(ctx context.Context, r io.Reader, device string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.FailRestore[device]; err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.Restored[device] = data
	b.RestoreOrder = append(b.RestoreOrder, device)
	return nil
}
