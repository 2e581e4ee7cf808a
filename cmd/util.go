package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/imaging"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/scratch"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/sqlite"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/registry"
)

// newRegistry loads the backend table and probes tool availability once,
// at startup. The probe results are fixed for the whole operation.
func newRegistry() (*registry.Registry, *registry.Config, error) {
	cfg, err := registry.LoadConfig(flagBackendConfig)
	if err != nil {
		return nil, nil, err
	}
	return registry.New(cfg, registry.ExecProber), cfg, nil
}

// newBackends builds one imaging backend instance per configured tool,
// plus the raw fallback.
func newBackends(cfg *registry.Config) map[string]model.ImagingBackend {
	runner := imaging.NewRunner()
	backends := map[string]model.ImagingBackend{
		registry.RawBackendName: imaging.NewRawBackend(imaging.DefaultBlockSize),
	}
	for kind, candidates := range cfg.Backends {
		for _, c := range candidates {
			capability := model.CapabilityBackend{
				Kind: kind,
				Name: c.Name,
				Mode: model.ModeUsedBlock,
			}
			backends[c.Name] = imaging.NewUsedBlockBackend(capability, c.Tool, runner)
		}
	}
	return backends
}

// openOperation leases the scratch area and state database for an action.
// An empty uid starts a fresh operation; passing the uid of a failed one
// reopens its scratch area and resumes.
func openOperation(uid string) (string, *scratch.Workspace, *sqlite.StateRepository, error) {
	if uid == "" {
		uid = uuid.NewString()
	}
	ws, err := scratch.New(flagScratchRoot, uid)
	if err != nil {
		return "", nil, nil, err
	}
	repo, err := sqlite.New(ws.DBPath())
	if err != nil {
		return "", nil, nil, err
	}
	return uid, ws, repo, nil
}

type performer interface {
	Perform(ctx context.Context) error
}

// runJob runs the job and applies the scratch retention policy: a failed
// operation keeps its scratch area, marked with the failure reason, so the
// operator can inspect it and resume with the same uid or release it with
// the cleanup command.
func runJob(ctx context.Context, p performer, uid string, ws *scratch.Workspace) error {
	err := p.Perform(ctx)
	if err == nil {
		if releaseErr := ws.Release(); releaseErr != nil {
			slog.Warn("failed to release scratch area", "path", ws.RootPath(), "error", releaseErr)
		}
		return nil
	}
	if errors.Is(err, job.ErrCantLock) {
		return fmt.Errorf("another operation is already running for this scratch area: %w", err)
	}
	if retainErr := ws.Retain(err.Error()); retainErr != nil {
		slog.Warn("failed to mark scratch area as retained", "error", retainErr)
	}
	fmt.Fprintf(os.Stderr, "scratch area retained at %s; resume with --uid %s or release with 'adc cleanup'\n",
		ws.RootPath(), uid)
	return err
}
