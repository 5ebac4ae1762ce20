package usecase

import (
	"strings"

	"todo-mcp/go-backend/pkg/models"
)

func ParseCreateInput(title, description string) (string, string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", "", validationError("Title is required")
	}
	return title, strings.TrimSpace(description), nil
}

func ParseRecordID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", validationError("Record ID is required")
	}
	return id, nil
}

func NormalizePatch(patch models.RecordPatch) (models.RecordPatch, error) {
	out := patch
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return models.RecordPatch{}, validationError("Title cannot be empty")
		}
		out.Title = &title
	}
	if patch.Description != nil {
		description := strings.TrimSpace(*patch.Description)
		out.Description = &description
	}
	return out, nil
}
