package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/bundle"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/scratch"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/sfdisk"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

var inspectFlags struct {
	device  string
	archive string
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "show the partition table of a device or archive bundle",
	RunE: func(cmd *cobra.Command, args []string) error {
		switch {
		case inspectFlags.device != "":
			return inspectDevice()
		case inspectFlags.archive != "":
			return inspectArchive()
		default:
			return fmt.Errorf("either --device or --archive is required")
		}
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectFlags.device, "device", "", "whole-disk device to inspect")
	inspectCmd.Flags().StringVar(&inspectFlags.archive, "archive", "", "archive bundle to inspect")
	inspectCmd.MarkFlagsMutuallyExclusive("device", "archive")
	rootCmd.AddCommand(inspectCmd)
}

func inspectDevice() error {
	table, err := sfdisk.NewPartitioner(nil).DumpTable(inspectFlags.device)
	if err != nil {
		return err
	}
	printTable(table, nil)
	return nil
}

func inspectArchive() error {
	ws, err := scratch.New(flagScratchRoot, uuid.NewString())
	if err != nil {
		return err
	}
	defer func() {
		if err := ws.Release(); err != nil {
			slog.Warn("failed to release scratch area", "path", ws.RootPath(), "error", err)
		}
	}()

	table, manifest, err := bundle.New().Unpack(inspectFlags.archive, ws)
	if err != nil {
		return err
	}
	printTable(table, manifest)
	return nil
}

func printTable(table *model.PartitionTable, manifest *model.Manifest) {
	fmt.Printf("disk GUID:     %s\n", table.DiskGUID)
	fmt.Printf("sector size:   %d\n", table.SectorSize)
	fmt.Printf("total sectors: %d (%s)\n",
		table.TotalSectors, humanize.IBytes(table.TotalSectors*table.SectorSize))
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if manifest == nil {
		fmt.Fprintln(w, "IDX\tSTART\tSIZE\tTYPE\tUUID")
		for _, e := range table.Entries {
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n",
				e.Index, e.StartSector,
				humanize.IBytes(e.SizeSectors*table.SectorSize),
				e.TypeGUID, e.PartitionUUID)
		}
	} else {
		fmt.Fprintln(w, "IDX\tSIZE\tFS\tBACKEND\tCODEC\tSTATUS\tPAYLOAD")
		for _, e := range table.Entries {
			m := manifest.Entry(e.Index)
			if m == nil {
				continue
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				e.Index,
				humanize.IBytes(e.SizeSectors*table.SectorSize),
				m.Filesystem, m.Backend, m.Codec, m.Status,
				humanize.IBytes(m.ByteSize))
		}
	}
	_ = w.Flush()
}
