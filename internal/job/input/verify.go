package input

import (
	"io"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

type Verify struct {
	Bundler     model.Bundler
	Workspace   model.Workspace
	ArchivePath string
	ProgressOut io.Writer
}
