package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/Shaharyar-developer/open-ot/internal/ot"
)

// MySQL keeps documents and their op logs in two tables. The optimistic lock
// is a guarded UPDATE on the revision column inside the commit transaction;
// zero affected rows means another writer got there first.
type MySQL struct {
	db *gorm.DB
}

type documentRow struct {
	ID               string `gorm:"primaryKey;size:128"`
	TypeName         string `gorm:"size:64;not null"`
	Revision         uint64 `gorm:"not null"`
	Snapshot         []byte `gorm:"type:longblob"`
	SnapshotRevision uint64 `gorm:"not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (documentRow) TableName() string { return "documents" }

type operationRow struct {
	DocID     string `gorm:"primaryKey;size:128;column:doc_id"`
	Idx       uint64 `gorm:"primaryKey"`
	OpID      string `gorm:"size:64;column:op_id"`
	Op        []byte `gorm:"type:json;not null"`
	CreatedAt time.Time
}

func (operationRow) TableName() string { return "operations" }

// OpenMySQL dials the DSN and migrates the schema.
func OpenMySQL(dsn string) (*MySQL, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ot.ErrStorageUnavailable, err)
	}
	if err := db.AutoMigrate(&documentRow{}, &operationRow{}); err != nil {
		return nil, fmt.Errorf("%w: migrate: %v", ot.ErrStorageUnavailable, err)
	}
	return &MySQL{db: db}, nil
}

// NewMySQL wraps an existing gorm handle; the caller owns migration.
func NewMySQL(db *gorm.DB) *MySQL { return &MySQL{db: db} }

func (m *MySQL) CreateDocument(ctx context.Context, docID, typeName string, initial json.RawMessage) error {
	row := documentRow{ID: docID, TypeName: typeName, Snapshot: initial}
	if err := m.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", ot.ErrDocumentExists, docID)
		}
		return fmt.Errorf("%w: %v", ot.ErrStorageUnavailable, err)
	}
	return nil
}

func (m *MySQL) GetRecord(ctx context.Context, docID string) (Record, error) {
	var row documentRow
	if err := m.db.WithContext(ctx).First(&row, "id = ?", docID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Record{}, fmt.Errorf("%w: %s", ot.ErrDocumentNotFound, docID)
		}
		return Record{}, fmt.Errorf("%w: %v", ot.ErrStorageUnavailable, err)
	}
	return Record{
		Type:             row.TypeName,
		Revision:         row.Revision,
		Snapshot:         row.Snapshot,
		SnapshotRevision: row.SnapshotRevision,
	}, nil
}

func (m *MySQL) GetHistory(ctx context.Context, docID string, from uint64, limit int) ([]Operation, error) {
	q := m.db.WithContext(ctx).
		Where("doc_id = ? AND idx >= ?", docID, from).
		Order("idx ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []operationRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ot.ErrStorageUnavailable, err)
	}
	out := make([]Operation, len(rows))
	for i, row := range rows {
		out[i] = Operation{ID: row.OpID, Op: row.Op}
	}
	return out, nil
}

func (m *MySQL) SaveOperation(ctx context.Context, docID string, op Operation, newRevision uint64) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&documentRow{}).
			Where("id = ? AND revision = ?", docID, newRevision-1).
			Update("revision", newRevision)
		if res.Error != nil {
			return fmt.Errorf("%w: %v", ot.ErrStorageUnavailable, res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&documentRow{}).Where("id = ?", docID).Count(&count).Error; err != nil {
				return fmt.Errorf("%w: %v", ot.ErrStorageUnavailable, err)
			}
			if count == 0 {
				return fmt.Errorf("%w: %s", ot.ErrDocumentNotFound, docID)
			}
			return fmt.Errorf("%w: %s commit at revision %d", ot.ErrConcurrencyConflict, docID, newRevision)
		}
		row := operationRow{DocID: docID, Idx: newRevision - 1, OpID: op.ID, Op: op.Op}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("%w: %v", ot.ErrStorageUnavailable, err)
		}
		return nil
	})
}
