package ports

import "todo-mcp/go-backend/pkg/models"

// RecordStore is the keyed record container shared by every session.
// GetAll returns records ordered by creation time, newest first.
type RecordStore interface {
	Create(rec models.Record) (models.Record, error)
	GetAll() []models.Record
	GetByID(id string) (models.Record, bool)
	Update(id string, patch models.RecordPatch) (models.Record, bool)
	Delete(id string) bool
	Len() int
}
