package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/cmd"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/pkg/csumio"
)

func main() {
	if err := cmd.Execute(); err != nil {
		slog.Error("failed to execute command", "error", err)
		if errors.Is(err, csumio.ErrChecksumMismatch) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
