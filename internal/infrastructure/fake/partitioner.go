package fake

import (
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

// Partitioner is an in-memory model.Partitioner that records every call so
// orchestrator tests can assert ordering and identity fixup behavior.
type Partitioner struct {
	// Tables holds the live table per device, returned by DumpTable and
	// replaced by ApplyTable.
	Tables map[string]*model.PartitionTable

	// ApplyErr, when set for a device, makes ApplyTable fail with a
	// TableWriteError.
	ApplyErr map[string]error

	AppliedTables    []string // devices, in call order
	DiskGUIDSets     []DiskGUIDSet
	IdentitySets     []IdentitySet
	RepairedBackups  []string
	ApplyCallCount   int
	IdentityAfterFix bool
}

type DiskGUIDSet struct {
	Device string
	GUID   string
}

type IdentitySet struct {
	Device string
	Entry  model.PartitionEntry
}

var _ model.Partitioner = &Partitioner{}

func NewPartitioner() *Partitioner {
	return &Partitioner{
		Tables:   make(map[string]*model.PartitionTable),
		ApplyErr: make(map[string]error),
	}
}

func (p *Partitioner) DumpTable(device string) (*model.PartitionTable, error) {
	table, ok := p.Tables[device]
	if !ok {
		return nil, model.ErrNotFound
	}
	return table.Clone(), nil
}

func (p *Partitioner) ApplyTable(device string, table *model.PartitionTable) error {
	p.ApplyCallCount++
	if err := p.ApplyErr[device]; err != nil {
		return &model.TableWriteError{Device: device, Diagnostic: "injected failure", Err: err}
	}
	p.Tables[device] = table.Clone()
	p.AppliedTables = append(p.AppliedTables, device)
	return nil
}

func (p *Partitioner) SetDiskGUID(device, guid string) error {
	p.DiskGUIDSets = append(p.DiskGUIDSets, DiskGUIDSet{Device: device, GUID: guid})
	if t, ok := p.Tables[device]; ok {
		t.DiskGUID = guid
	}
	return nil
}

func (p *Partitioner) SetPartitionIdentity(device string, entry *model.PartitionEntry) error {
	p.IdentitySets = append(p.IdentitySets, IdentitySet{Device: device, Entry: *entry})
	if t, ok := p.Tables[device]; ok {
		if e := t.Entry(entry.Index); e != nil {
			e.TypeGUID = entry.TypeGUID
			e.PartitionUUID = entry.PartitionUUID
		}
	}
	return nil
}

func (p *Partitioner) RepairBackupHeader(device string) error {
	p.RepairedBackups = append(p.RepairedBackups, device)
	return nil
}
