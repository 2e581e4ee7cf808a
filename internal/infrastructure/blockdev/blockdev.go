// Package blockdev implements the device inspector over util-linux lsblk
// and findmnt. All facts come from one lsblk JSON query per call so the
// view of a device and its partitions is internally consistent.
package blockdev

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

// Runner executes an inspection tool and returns its stdout.
type Runner interface {
	Run(ctx context.Context, command ...string) ([]byte, error)
}

type execRunner struct{}

// NewRunner returns the exec-based Runner.
func NewRunner() Runner {
	return &execRunner{}
}

func (e *execRunner) Run(ctx context.Context, command ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", command[0], err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// lsblkDevice mirrors one node of lsblk --json -b output.
type lsblkDevice struct {
	Name       string        `json:"name"`
	Path       string        `json:"path"`
	Size       uint64        `json:"size"`
	LogSec     uint64        `json:"log-sec"`
	Type       string        `json:"type"`
	Fstype     *string       `json:"fstype"`
	Mountpoint *string       `json:"mountpoint"`
	FSUsed     *uint64       `json:"fsused"`
	PartN      *int          `json:"partn"`
	Children   []lsblkDevice `json:"children"`
}

type lsblkOutput struct {
	BlockDevices []lsblkDevice `json:"blockdevices"`
}

// Inspector is the lsblk/findmnt implementation of model.DeviceInspector.
type Inspector struct {
	runner Runner
}

var _ model.DeviceInspector = &Inspector{}

func NewInspector(runner Runner) *Inspector {
	if runner == nil {
		runner = NewRunner()
	}
	return &Inspector{runner: runner}
}

const lsblkColumns = "NAME,PATH,SIZE,LOG-SEC,TYPE,FSTYPE,MOUNTPOINT,FSUSED,PARTN"

func (i *Inspector) query(device string) (*lsblkDevice, error) {
	out, err := i.runner.Run(context.Background(),
		"lsblk", "--json", "-b", "-o", lsblkColumns, device)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", device, err)
	}
	var parsed lsblkOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse lsblk output for %s: %w", device, err)
	}
	if len(parsed.BlockDevices) == 0 {
		return nil, fmt.Errorf("no block device %s: %w", device, model.ErrNotFound)
	}
	return &parsed.BlockDevices[0], nil
}

func (i *Inspector) SizeBytes(device string) (uint64, error) {
	dev, err := i.query(device)
	if err != nil {
		return 0, err
	}
	return dev.Size, nil
}

func (i *Inspector) SectorSize(device string) (uint64, error) {
	dev, err := i.query(device)
	if err != nil {
		return 0, err
	}
	if dev.LogSec == 0 {
		return 512, nil
	}
	return dev.LogSec, nil
}

func (i *Inspector) PartitionDevice(disk string, index int) (string, error) {
	dev, err := i.query(disk)
	if err != nil {
		return "", err
	}
	for _, child := range dev.Children {
		if child.Type != "part" || child.PartN == nil {
			continue
		}
		if *child.PartN == index {
			if child.Path != "" {
				return child.Path, nil
			}
			return "/dev/" + child.Name, nil
		}
	}
	return "", fmt.Errorf("no partition %d on %s: %w", index, disk, model.ErrNotFound)
}

func (i *Inspector) Filesystem(device string) (model.FilesystemKind, error) {
	dev, err := i.query(device)
	if err != nil {
		return model.FilesystemUnknown, err
	}
	if dev.Fstype == nil {
		return model.FilesystemUnknown, nil
	}
	return model.ParseFilesystemKind(*dev.Fstype), nil
}

// IsMounted reports whether the device or any partition on it is mounted.
func (i *Inspector) IsMounted(device string) (bool, error) {
	dev, err := i.query(device)
	if err != nil {
		return false, err
	}
	return anyMounted(dev), nil
}

func anyMounted(dev *lsblkDevice) bool {
	if dev.Mountpoint != nil && *dev.Mountpoint != "" {
		return true
	}
	for idx := range dev.Children {
		if anyMounted(&dev.Children[idx]) {
			return true
		}
	}
	return false
}

func (i *Inspector) RootBackingDevice() (string, error) {
	out, err := i.runner.Run(context.Background(), "findmnt", "-no", "SOURCE", "/")
	if err != nil {
		return "", fmt.Errorf("failed to find root filesystem source: %w", err)
	}
	source := strings.TrimSpace(string(out))
	if source == "" {
		return "", fmt.Errorf("root filesystem has no backing device: %w", model.ErrNotFound)
	}

	out, err = i.runner.Run(context.Background(), "lsblk", "-no", "PKNAME", source)
	if err != nil {
		return "", fmt.Errorf("failed to find parent of %s: %w", source, err)
	}
	parent := strings.TrimSpace(string(out))
	if parent == "" {
		// Already a whole disk, e.g. a root filesystem directly on a loop
		// or virtual device.
		return source, nil
	}
	return "/dev/" + parent, nil
}

func (i *Inspector) UsedBytes(device string) (uint64, error) {
	dev, err := i.query(device)
	if err != nil {
		return 0, err
	}
	if dev.FSUsed == nil {
		return 0, fmt.Errorf("no filesystem usage for %s: %w", device, model.ErrNotFound)
	}
	return *dev.FSUsed, nil
}
