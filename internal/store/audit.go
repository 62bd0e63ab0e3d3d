package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// AuditFilter selects and orders audit entries.
type AuditFilter struct {
	// Action restricts entries to one action when set.
	Action *string
	// Descending orders newest first.
	Descending bool
}

// AuditEntries returns an ordered query over audit entries.
//
// Parameters:
//   - f (AuditFilter): filter and order
//
// Returns:
//   - *Query[AuditEntry]: query usable as a connection source
func (s *Store) AuditEntries(f AuditFilter) *Query[AuditEntry] {
	db := s.db.Model(&AuditEntry{})
	if f.Action != nil {
		db = db.Where("action = ?", *f.Action)
	}

	dir := "ASC"
	if f.Descending {
		dir = "DESC"
	}
	db = db.Order(fmt.Sprintf("created_at %s, id %s", dir, dir))

	return NewQuery[AuditEntry](s, "audit_entries", db)
}

// CreateAuditEntry inserts an audit entry.
//
// Parameters:
//   - ctx (context.Context): request context
//   - entry (*AuditEntry): entry to insert, ID and CreatedAt are set on success
//
// Returns:
//   - error: nil on success, insert error on failure
func (s *Store) CreateAuditEntry(ctx context.Context, entry *AuditEntry) error {
	err := s.execute("audit_create", func() error {
		return s.db.WithContext(ctx).Create(entry).Error
	})
	if err != nil {
		return fmt.Errorf("creating audit entry: %w", err)
	}
	return nil
}

// GetAuditEntry retrieves a single audit entry by ID.
//
// Parameters:
//   - ctx (context.Context): request context
//   - id (uint64): entry ID
//
// Returns:
//   - *AuditEntry: the entry or nil if not found
//   - error: nil on success, query error on failure
func (s *Store) GetAuditEntry(ctx context.Context, id uint64) (*AuditEntry, error) {
	var entry AuditEntry
	err := s.execute("audit_get", func() error {
		return s.db.WithContext(ctx).First(&entry, id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting audit entry %d: %w", id, err)
	}
	return &entry, nil
}

// DeleteAuditEntry deletes an audit entry by ID.
//
// Parameters:
//   - ctx (context.Context): request context
//   - id (uint64): entry ID
//
// Returns:
//   - bool: true if an entry was deleted
//   - error: nil on success, delete error on failure
func (s *Store) DeleteAuditEntry(ctx context.Context, id uint64) (bool, error) {
	var deleted int64
	err := s.execute("audit_delete", func() error {
		res := s.db.WithContext(ctx).Delete(&AuditEntry{}, id)
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("deleting audit entry %d: %w", id, err)
	}
	return deleted > 0, nil
}
