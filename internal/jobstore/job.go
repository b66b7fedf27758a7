// Package jobstore is the relational job-execution substrate: claim,
// update, stale/retention sweeps, and read-only quota counters, atop a
// Postgres-backed implementation and an in-memory fake sharing one contract.
package jobstore

import (
	"encoding/json"
	"time"
)

// Kind is the artifact family a job produces.
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
)

// State is the job's lifecycle position.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Family distinguishes the export job family from the content-extraction
// family that shares the same durable-queue shape; by default the poller
// tries extraction before export every tick.
type Family string

const (
	FamilyExtraction Family = "extraction"
	FamilyExport     Family = "export"
)

// Job is the unit of durable work the queue protocol operates on.
type Job struct {
	ID           string
	OwnerID      string
	TargetID     string
	Family       Family
	Kind         Kind
	State        State
	Priority     int
	RetryCount   int
	AvailableAt  time.Time
	WorkerID     string
	StartedAt    *time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
	StoragePath  string
	ArtifactURL  string
	ErrorMessage string
	Metadata     json.RawMessage
}

// ExportOptions is the export-shape portion of a Snapshot's configuration.
type ExportOptions struct {
	Format        string         `json:"format"`
	Orientation   string         `json:"orientation"`
	IncludeImages bool           `json:"include_images"`
	IncludePrices bool           `json:"include_prices"`
	Configuration map[string]any `json:"configuration,omitempty"`
}

// MenuData is the fully-denormalized menu payload captured at enqueue time.
type MenuData struct {
	ID    string            `json:"id"`
	Name  string            `json:"name"`
	Items []json.RawMessage `json:"items"`
}

// Snapshot is the frozen render input, immutable after enqueue; workers
// render only from this, never re-fetching source records.
type Snapshot struct {
	TemplateID        string        `json:"template_id"`
	TemplateVersion   string        `json:"template_version"`
	TemplateName      string        `json:"template_name"`
	MenuData          MenuData      `json:"menu_data"`
	ExportOptions     ExportOptions `json:"export_options"`
	SnapshotCreatedAt time.Time     `json:"snapshot_created_at"`
	SnapshotVersion   string        `json:"snapshot_version"`
	DisplayName       string        `json:"display_name,omitempty"`
}

// Metadata is the opaque JSON bag stored on a Job; render_snapshot is
// required, display_name is optional.
type Metadata struct {
	RenderSnapshot json.RawMessage `json:"render_snapshot"`
	DisplayName    string          `json:"display_name,omitempty"`
}

// Stats summarizes queue health for the admin surface and observability.
type Stats struct {
	Pending              int64
	Processing           int64
	Completed24h         int64
	Failed24h            int64
	AvgProcessingSeconds float64
	OldestPendingSeconds float64
}

// CompletedRef identifies a completed row for retention purposes.
type CompletedRef struct {
	ID          string
	StoragePath string
}
