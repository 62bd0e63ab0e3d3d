package store

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditEntry records one action taken through the GraphQL API.
type AuditEntry struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Action    string         `gorm:"type:varchar(100);index:idx_audit_action;not null" json:"action"`
	Actor     string         `gorm:"type:varchar(100);not null;default:''" json:"actor"`
	Details   datatypes.JSON `gorm:"type:jsonb" json:"details"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"createdAt"`
}

// TableName returns the table name for AuditEntry.
func (AuditEntry) TableName() string {
	return "audit_entries"
}

// BeforeCreate sets the creation time if not already set.
func (a *AuditEntry) BeforeCreate(_ *gorm.DB) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	return nil
}

// Models returns every model of the package, in migration order.
func Models() []interface{} {
	return []interface{}{&AuditEntry{}}
}
