// Package cleanup implements the scratch cleanup job: list the retained
// scratch areas left behind by failed operations and release them.
package cleanup

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/scratch"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job/input"
)

type Cleanup struct {
	scratchRoot string
	dryRun      bool
	out         io.Writer
}

func NewCleanup(in *input.Cleanup) *Cleanup {
	return &Cleanup{
		scratchRoot: in.ScratchRoot,
		dryRun:      in.DryRun,
		out:         in.Out,
	}
}

// Perform releases every retained scratch area under the scratch root. A
// directory without a retain marker is never touched: it may belong to an
// operation that is still running.
func (c *Cleanup) Perform(ctx context.Context) error {
	retained, err := scratch.ListRetained(c.scratchRoot)
	if err != nil {
		return err
	}
	if len(retained) == 0 {
		if c.out != nil {
			fmt.Fprintln(c.out, "no retained scratch areas")
		}
		return nil
	}

	for _, path := range retained {
		if err := ctx.Err(); err != nil {
			return err
		}
		ws, err := scratch.Open(path)
		if err != nil {
			return err
		}
		_, reason := ws.Retained()
		if c.out != nil {
			fmt.Fprintf(c.out, "%s\t%s\n", path, reason)
		}
		if c.dryRun {
			continue
		}
		if err := ws.Release(); err != nil {
			return err
		}
		slog.Info("released scratch area", "path", path, "reason", reason)
	}
	return nil
}
