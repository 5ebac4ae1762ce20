// Package uisnapshot renders the interactive todo view returned alongside
// operation results. Rendering is a pure function of the record listing.
//
// The embedded script never calls the server directly. It posts intent
// messages to the embedding host:
//
//	{type: "tool", payload: {toolName: "create_record" | "update_record" | "delete_record", params: {...}}}
//
// and the host is expected to translate each one into an operation call.
package uisnapshot

import (
	"bytes"
	"fmt"
	"html/template"

	"todo-mcp/go-backend/pkg/models"
)

const (
	ResourceURI = "ui://todo-app/main"
	MimeType    = "text/html"
)

const (
	IntentCreate = "create_record"
	IntentUpdate = "update_record"
	IntentDelete = "delete_record"
)

// Snapshot is a self-contained HTML fragment keyed by a fixed resource URI.
type Snapshot struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

type view struct {
	Total     int
	Active    []models.Record
	Completed []models.Record
}

type Renderer struct {
	tmpl *template.Template
}

func NewRenderer() *Renderer {
	return &Renderer{tmpl: template.Must(template.New("todo").Parse(pageTemplate))}
}

// Render partitions records into active and completed groups, preserving the
// given order inside each group.
func (r *Renderer) Render(records []models.Record) (Snapshot, error) {
	v := view{Total: len(records)}
	for _, rec := range records {
		if rec.Completed {
			v.Completed = append(v.Completed, rec)
		} else {
			v.Active = append(v.Active, rec)
		}
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, v); err != nil {
		return Snapshot{}, fmt.Errorf("render todo view: %w", err)
	}
	return Snapshot{URI: ResourceURI, MimeType: MimeType, Text: buf.String()}, nil
}

const pageTemplate = `<div class="todo-app">
<style>
.todo-app{font-family:system-ui,sans-serif;max-width:640px;margin:0 auto;padding:16px;color:#1f2933}
.todo-app h2{font-size:1.25rem;margin:0 0 12px}
.todo-app form{display:flex;gap:8px;margin-bottom:16px}
.todo-app input[type=text]{flex:1;padding:6px 8px;border:1px solid #cbd2d9;border-radius:4px}
.todo-app button{padding:6px 10px;border:0;border-radius:4px;background:#3e4c59;color:#fff;cursor:pointer}
.todo-app button.delete{background:#ba2525}
.todo-app ul{list-style:none;padding:0;margin:0 0 16px}
.todo-app li{display:flex;align-items:center;gap:8px;padding:6px 0;border-bottom:1px solid #e4e7eb}
.todo-app li .title{flex:1}
.todo-app li.done .title{text-decoration:line-through;color:#7b8794}
.todo-app .description{display:block;font-size:.85rem;color:#616e7c}
.todo-app .empty{color:#7b8794;text-align:center;padding:24px 0}
</style>
<h2>Todos <span class="count">({{.Total}})</span></h2>
<form id="todo-create">
<input type="text" name="title" placeholder="What needs to be done?" required>
<input type="text" name="description" placeholder="Description (optional)">
<button type="submit">Add</button>
</form>
{{- if eq .Total 0}}
<p class="empty">No todos yet. Add one above.</p>
{{- else}}
<section class="group active">
<h3>Active ({{len .Active}})</h3>
<ul>
{{- range .Active}}
{{template "item" .}}
{{- end}}
</ul>
</section>
<section class="group completed">
<h3>Completed ({{len .Completed}})</h3>
<ul>
{{- range .Completed}}
{{template "item" .}}
{{- end}}
</ul>
</section>
{{- end}}
<script>
(function () {
  var root = document.currentScript ? document.currentScript.parentNode : document;
  function send(toolName, params) {
    window.parent.postMessage({ type: "tool", payload: { toolName: toolName, params: params } }, "*");
  }
  var form = root.querySelector("#todo-create");
  form.addEventListener("submit", function (e) {
    e.preventDefault();
    var title = form.elements.title.value.trim();
    if (!title) { return; }
    var params = { title: title };
    var description = form.elements.description.value.trim();
    if (description) { params.description = description; }
    send("create_record", params);
    form.reset();
  });
  root.querySelectorAll("[data-action]").forEach(function (el) {
    var kind = el.getAttribute("data-action");
    el.addEventListener(kind === "toggle" ? "change" : "click", function () {
      var item = el.closest("li[data-id]");
      var id = item.getAttribute("data-id");
      if (kind === "toggle") {
        send("update_record", { id: id, completed: el.checked });
      } else if (kind === "edit") {
        var next = window.prompt("Title", item.getAttribute("data-title"));
        if (next && next.trim()) { send("update_record", { id: id, title: next.trim() }); }
      } else if (kind === "delete") {
        send("delete_record", { id: id });
      }
    });
  });
})();
</script>
</div>
{{define "item"}}<li data-id="{{.ID}}" data-title="{{.Title}}"{{if .Completed}} class="done"{{end}}>
<input type="checkbox" data-action="toggle"{{if .Completed}} checked{{end}}>
<span class="title">{{.Title}}{{if .Description}}<span class="description">{{.Description}}</span>{{end}}</span>
<button type="button" data-action="edit">Edit</button>
<button type="button" class="delete" data-action="delete">Delete</button>
</li>{{end}}`
