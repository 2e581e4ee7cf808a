package input

import (
	"io"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

// Restore carries no registry: the manifest pins each partition's backend
// by name, so restore never re-resolves capabilities.
type Restore struct {
	Repo        model.StateRepository
	Inspector   model.DeviceInspector
	Partitioner model.Partitioner
	Backends    map[string]model.ImagingBackend
	Bundler     model.Bundler
	Workspace   model.Workspace
	ActionUID   string
	Request     *model.OperationRequest
	ProgressOut io.Writer
}
