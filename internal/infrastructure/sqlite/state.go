// Package sqlite persists operation state in the scratch area: the
// single-operation lock, the resumable per-phase private data read back on
// retry, and the durable record of the in-progress archive.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

// StateRepository implements model.StateRepository.
type StateRepository struct {
	db *sql.DB
}

var _ model.StateRepository = &StateRepository{}

func isSQLiteBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy
	}
	return false
}

// New opens (creating if necessary) the state database at dbPath.
func New(dbPath string) (*StateRepository, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_txlock=exclusive", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		_ = db.Close()
		if isSQLiteBusy(err) {
			return nil, model.ErrBusy
		}
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createTableStmt := `
	CREATE TABLE IF NOT EXISTS operation_status (
		uid TEXT NOT NULL PRIMARY KEY,
		mode TEXT NOT NULL,
		private_data BLOB,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME
	);
	CREATE TABLE IF NOT EXISTS operation_record (
		id INTEGER PRIMARY KEY,
		data BLOB,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME
	);
	`
	if _, err := tx.Exec(createTableStmt); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if err := tx.Commit(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &StateRepository{db: db}, nil
}

func (r *StateRepository) Close() error {
	return r.db.Close()
}

// StartOrRestartAction acquires the single-operation lock. A row for a
// different UID means another operation is in flight and the caller gets
// ErrBusy; a row for the same UID means this is a retry and the existing
// private data is kept.
func (r *StateRepository) StartOrRestartAction(uid string, mode model.Mode) error {
	tx, err := r.db.Begin()
	if err != nil {
		if isSQLiteBusy(err) {
			return model.ErrBusy
		}
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.Query("SELECT uid, mode FROM operation_status")
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundMyEntry := false
	rowCount := 0
	for rows.Next() {
		rowCount++
		if rowCount >= 2 {
			return fmt.Errorf("multiple operations found")
		}

		var foundUID, foundMode string
		if err := rows.Scan(&foundUID, &foundMode); err != nil {
			return err
		}
		if foundUID != uid {
			return fmt.Errorf("%w: another operation (uid: %s, mode: %s) is already running",
				model.ErrBusy, foundUID, foundMode)
		}
		if foundMode != string(mode) {
			return fmt.Errorf("bug: unexpected mode (uid: %s, mode: %s)", foundUID, foundMode)
		}
		foundMyEntry = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if !foundMyEntry {
		if _, err := tx.Exec("INSERT INTO operation_status (uid, mode) VALUES(?, ?)", uid, string(mode)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *StateRepository) GetActionPrivateData(uid string) ([]byte, error) {
	var privateData []byte
	err := r.db.QueryRow("SELECT private_data FROM operation_status WHERE uid = ?", uid).Scan(&privateData)
	if err != nil {
		if isSQLiteBusy(err) {
			return nil, model.ErrBusy
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return privateData, nil
}

func (r *StateRepository) UpdateActionPrivateData(uid string, privateData []byte) error {
	result, err := r.db.Exec(
		"UPDATE operation_status SET private_data = ?, updated_at = ? WHERE uid = ?",
		privateData, time.Now(), uid)
	if err != nil {
		if isSQLiteBusy(err) {
			return model.ErrBusy
		}
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("no rows updated for uid: %s", uid)
	}
	return nil
}

func (r *StateRepository) CompleteAction(uid string) error {
	if _, err := r.db.Exec("DELETE FROM operation_status WHERE uid = ?", uid); err != nil {
		if isSQLiteBusy(err) {
			return model.ErrBusy
		}
		return err
	}
	return nil
}

func (r *StateRepository) GetOperationRecord() ([]byte, error) {
	var data []byte
	err := r.db.QueryRow("SELECT data FROM operation_record").Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return data, nil
}

func (r *StateRepository) SetOperationRecord(data []byte) error {
	result, err := r.db.Exec(
		"INSERT INTO operation_record (id, data, created_at) VALUES (1, ?, ?)"+
			" ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.created_at",
		data, time.Now())
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("operation_record was not updated")
	}
	return nil
}
