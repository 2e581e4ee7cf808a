package input

import (
	"io"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/registry"
)

type Clone struct {
	Repo        model.StateRepository
	Inspector   model.DeviceInspector
	Partitioner model.Partitioner
	Registry    *registry.Registry
	Backends    map[string]model.ImagingBackend
	ActionUID   string
	Request     *model.OperationRequest
	ProgressOut io.Writer
}
