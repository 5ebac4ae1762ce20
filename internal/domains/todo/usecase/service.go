package usecase

import (
	"errors"
	"fmt"
	"time"

	"todo-mcp/go-backend/internal/domains/todo/ports"
	"todo-mcp/go-backend/pkg/models"

	"github.com/google/uuid"
)

type ServiceDeps struct {
	Store ports.RecordStore

	GenerateID func() string
	Now        func() time.Time
}

type DeleteResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

type Service struct {
	deps ServiceDeps
}

func NewService(deps ServiceDeps) *Service {
	if deps.GenerateID == nil {
		deps.GenerateID = uuid.NewString
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{deps: deps}
}

// List returns records newest first, optionally restricted to one completion state.
func (s *Service) List(completed *bool) []models.Record {
	all := s.deps.Store.GetAll()
	if completed == nil {
		return all
	}
	out := make([]models.Record, 0, len(all))
	for _, rec := range all {
		if rec.Completed == *completed {
			out = append(out, rec)
		}
	}
	return out
}

func (s *Service) Count() int {
	return s.deps.Store.Len()
}

func (s *Service) Create(title, description string) (models.Record, error) {
	title, description, err := ParseCreateInput(title, description)
	if err != nil {
		return models.Record{}, err
	}
	now := s.deps.Now()
	rec := models.Record{
		ID:          s.deps.GenerateID(),
		Title:       title,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := s.deps.Store.Create(rec)
	if err != nil {
		return models.Record{}, fmt.Errorf("create record: %w", err)
	}
	return created, nil
}

func (s *Service) Update(id string, patch models.RecordPatch) (models.Record, error) {
	id, err := ParseRecordID(id)
	if err != nil {
		return models.Record{}, err
	}
	patch, err = NormalizePatch(patch)
	if err != nil {
		return models.Record{}, err
	}
	updated, ok := s.deps.Store.Update(id, patch)
	if !ok {
		return models.Record{}, notFoundError(id)
	}
	return updated, nil
}

func (s *Service) Delete(id string) (DeleteResult, error) {
	id, err := ParseRecordID(id)
	if err != nil {
		return DeleteResult{}, err
	}
	if !s.deps.Store.Delete(id) {
		return DeleteResult{}, notFoundError(id)
	}
	return DeleteResult{Success: true, ID: id}, nil
}

// InvalidArguments wraps a decoding failure as a validation failure.
func InvalidArguments(err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	return validationError("Invalid arguments: %v", err)
}
