package models

import "time"

// Record is a single todo entry. ID is assigned on creation and never reassigned.
type Record struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RecordPatch carries the fields supplied to an update; nil means "leave unchanged".
type RecordPatch struct {
	Title       *string
	Description *string
	Completed   *bool
}

func (p RecordPatch) Apply(rec Record) Record {
	if p.Title != nil {
		rec.Title = *p.Title
	}
	if p.Description != nil {
		rec.Description = *p.Description
	}
	if p.Completed != nil {
		rec.Completed = *p.Completed
	}
	return rec
}
