// Package parttable models GPT partition tables as sfdisk-script dumps and
// computes derived layouts for restore. All functions are pure; applying a
// table to a device is the partitioner infrastructure's job.
package parttable

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

// ReservedTrailingSectors is the GPT overhead at the end of the disk; see
// model.ReservedTrailingSectors.
const ReservedTrailingSectors = model.ReservedTrailingSectors

// Parse parses an sfdisk-style dump into a PartitionTable. The dump must
// declare a gpt label. Per-entry type GUIDs and partition UUIDs are
// preserved verbatim since they are semantically required; no other
// per-entry field is passed through. If no partition line matches the entry
// grammar, Parse fails with model.ErrMalformedTable.
func Parse(raw []byte) (*model.PartitionTable, error) {
	table := &model.PartitionTable{}

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if device, fields, ok := strings.Cut(line, " : "); ok && strings.HasPrefix(device, "/") {
			entry, err := parseEntry(fields)
			if err != nil {
				return nil, err
			}
			table.Entries = append(table.Entries, *entry)
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "label":
			if value != "gpt" {
				return nil, fmt.Errorf("%w: unsupported label %q", model.ErrMalformedTable, value)
			}
		case "label-id":
			if _, err := uuid.Parse(value); err != nil {
				return nil, fmt.Errorf("%w: bad label-id %q", model.ErrMalformedTable, value)
			}
			table.DiskGUID = strings.ToUpper(value)
		case "sector-size":
			n, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad sector-size %q", model.ErrMalformedTable, value)
			}
			table.SectorSize = n
		case "last-lba":
			n, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad last-lba %q", model.ErrMalformedTable, value)
			}
			table.TotalSectors = n + ReservedTrailingSectors
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan table dump: %w", err)
	}

	if len(table.Entries) == 0 {
		return nil, fmt.Errorf("%w: no partition lines found", model.ErrMalformedTable)
	}
	for i := range table.Entries {
		table.Entries[i].Index = i + 1
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

func parseEntry(fields string) (*model.PartitionEntry, error) {
	entry := &model.PartitionEntry{Filesystem: model.FilesystemUnknown}
	sawGeometry := false

	for _, field := range strings.Split(fields, ",") {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "start":
			n, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad start %q", model.ErrMalformedTable, value)
			}
			entry.StartSector = n
			sawGeometry = true
		case "size":
			n, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad size %q", model.ErrMalformedTable, value)
			}
			entry.SizeSectors = n
			sawGeometry = true
		case "type":
			if _, err := uuid.Parse(value); err != nil {
				return nil, fmt.Errorf("%w: bad type GUID %q", model.ErrMalformedTable, value)
			}
			entry.TypeGUID = strings.ToUpper(value)
		case "uuid":
			if _, err := uuid.Parse(value); err != nil {
				return nil, fmt.Errorf("%w: bad partition UUID %q", model.ErrMalformedTable, value)
			}
			entry.PartitionUUID = strings.ToUpper(value)
		}
	}

	if !sawGeometry {
		return nil, fmt.Errorf("%w: entry line %q has no geometry", model.ErrMalformedTable, fields)
	}
	return entry, nil
}

// Serialize emits a dump that sfdisk accepts and Parse round-trips. The
// device column is synthesized from the index; sfdisk only uses it for
// ordering.
func Serialize(table *model.PartitionTable) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "label: gpt\n")
	if table.DiskGUID != "" {
		fmt.Fprintf(&b, "label-id: %s\n", table.DiskGUID)
	}
	if table.SectorSize > 0 {
		fmt.Fprintf(&b, "sector-size: %d\n", table.SectorSize)
	}
	if table.TotalSectors > 0 {
		fmt.Fprintf(&b, "last-lba: %d\n", table.TotalSectors-ReservedTrailingSectors)
	}
	fmt.Fprintf(&b, "unit: sectors\n\n")

	for _, e := range table.Entries {
		fmt.Fprintf(&b, "/dev/part%d : start= %d, size= %d", e.Index, e.StartSector, e.SizeSectors)
		if e.TypeGUID != "" {
			fmt.Fprintf(&b, ", type=%s", e.TypeGUID)
		}
		if e.PartitionUUID != "" {
			fmt.Fprintf(&b, ", uuid=%s", e.PartitionUUID)
		}
		fmt.Fprintf(&b, "\n")
	}
	return b.Bytes()
}
