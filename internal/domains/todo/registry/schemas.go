package registry

import "encoding/json"

var (
	listRecordsSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "completed": {"type": "boolean", "description": "Filter by completion status"}
  }
}`)

	createRecordSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "title": {"type": "string", "description": "The title of the todo item"},
    "description": {"type": "string", "description": "Optional description for the todo"}
  },
  "required": ["title"]
}`)

	updateRecordSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "id": {"type": "string", "description": "The ID of the todo to update"},
    "title": {"type": "string", "description": "New title for the todo"},
    "description": {"type": "string", "description": "New description for the todo"},
    "completed": {"type": "boolean", "description": "Mark todo as completed or not"}
  },
  "required": ["id"]
}`)

	deleteRecordSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "id": {"type": "string", "description": "The ID of the todo to delete"}
  },
  "required": ["id"]
}`)

	renderUISchema = json.RawMessage(`{"type": "object", "properties": {}}`)
)
