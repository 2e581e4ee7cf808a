package model

import "fmt"

// ManifestStatus is the terminal outcome of one partition's imaging.
type ManifestStatus string

const (
	StatusOK     ManifestStatus = "ok"
	StatusFailed ManifestStatus = "failed"
)

// ManifestEntry records the outcome of archiving one partition. Exactly one
// entry is appended per partition, success or failure, never both.
type ManifestEntry struct {
	PartitionIndex  int            `json:"partitionIndex"`
	Filesystem      FilesystemKind `json:"filesystem"`
	Backend         string         `json:"backend"`
	BackendMode     BackendMode    `json:"backendMode"`
	Codec           string         `json:"codec"`
	PayloadFilename string         `json:"payloadFilename,omitempty"`
	Status          ManifestStatus `json:"status"`
	ByteSize        uint64         `json:"byteSize"`
}

// Manifest is the per-partition outcome ledger produced by an archive
// operation and consumed by restore. It is append-only during archive and
// read-only during restore.
type Manifest struct {
	Entries []ManifestEntry `json:"entries"`
}

// Append adds an entry. Each partition index may appear at most once.
func (m *Manifest) Append(e ManifestEntry) error {
	for _, existing := range m.Entries {
		if existing.PartitionIndex == e.PartitionIndex {
			return fmt.Errorf("manifest already has an entry for partition %d", e.PartitionIndex)
		}
	}
	m.Entries = append(m.Entries, e)
	return nil
}

// Entry returns the entry for the given partition index, or nil.
func (m *Manifest) Entry(index int) *ManifestEntry {
	for i := range m.Entries {
		if m.Entries[i].PartitionIndex == index {
			return &m.Entries[i]
		}
	}
	return nil
}

// Successful returns the entries with status ok, in manifest order.
func (m *Manifest) Successful() []ManifestEntry {
	var out []ManifestEntry
	for _, e := range m.Entries {
		if e.Status == StatusOK {
			out = append(out, e)
		}
	}
	return out
}

// SuccessfulIndices returns the partition indices with status ok.
func (m *Manifest) SuccessfulIndices() []int {
	var out []int
	for _, e := range m.Entries {
		if e.Status == StatusOK {
			out = append(out, e.PartitionIndex)
		}
	}
	return out
}

// FailedIndices returns the partition indices with status failed.
func (m *Manifest) FailedIndices() []int {
	var out []int
	for _, e := range m.Entries {
		if e.Status == StatusFailed {
			out = append(out, e.PartitionIndex)
		}
	}
	return out
}
