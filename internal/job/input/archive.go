package input

import (
	"io"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/codec"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/registry"
)

type Archive struct {
	Repo        model.StateRepository
	Inspector   model.DeviceInspector
	Partitioner model.Partitioner
	Registry    *registry.Registry
	Backends    map[string]model.ImagingBackend
	Bundler     model.Bundler
	Workspace   model.Workspace
	Codec       codec.Codec
	ActionUID   string
	Request     *model.OperationRequest
	ProgressOut io.Writer
}
