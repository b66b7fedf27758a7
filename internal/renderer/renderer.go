// Package renderer is the pure-function template layer: it turns a frozen
// Snapshot into an HTML document for the RenderPool to rasterize. It never
// touches the network, the job store, or the render pool, and a fixed
// Snapshot must always yield byte-identical HTML.
package renderer

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"

	"github.com/tablecraft/export-worker/internal/jobstore"
)

// ErrUnknownTemplate classifies as permanent_input: the snapshot names a
// template version this worker doesn't know how to render.
var ErrUnknownTemplate = errors.New("unknown_template")

// Document is the pure output of translating a Snapshot into render input.
type Document struct {
	HTML        []byte
	ContentType string
}

// TemplateRenderer is the narrow collaborator the Processor calls between
// SnapshotResolver and RenderPool.
type TemplateRenderer interface {
	Render(snap jobstore.Snapshot) (Document, error)
}

// Default renders every known template version with html/template, relying
// on its contextual auto-escaping since menu content is end-user authored.
type Default struct {
	templates map[string]*template.Template
}

// NewDefault compiles the built-in template set once at construction.
func NewDefault() (*Default, error) {
	d := &Default{templates: make(map[string]*template.Template)}
	for version, src := range builtinTemplates {
		tmpl, err := template.New(version).Funcs(templateFuncs).Parse(src)
		if err != nil {
			return nil, fmt.Errorf("compile template %s: %w", version, err)
		}
		d.templates[version] = tmpl
	}
	return d, nil
}

func (d *Default) Render(snap jobstore.Snapshot) (Document, error) {
	tmpl, ok := d.templates[snap.TemplateVersion]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, snap.TemplateVersion)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, viewFromSnapshot(snap)); err != nil {
		return Document{}, fmt.Errorf("execute template %s: %w", snap.TemplateVersion, err)
	}
	return Document{HTML: buf.Bytes(), ContentType: "text/html; charset=utf-8"}, nil
}

var _ TemplateRenderer = (*Default)(nil)
