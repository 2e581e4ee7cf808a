package input

import "io"

type Cleanup struct {
	ScratchRoot string
	// DryRun lists retained scratch areas without releasing them.
	DryRun bool
	Out    io.Writer
}
