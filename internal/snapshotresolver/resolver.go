// Package snapshotresolver extracts and validates the frozen render input
// embedded in a job's metadata bag. A missing or malformed snapshot is
// always a permanent, non-retryable failure.
package snapshotresolver

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tablecraft/export-worker/internal/jobstore"
)

// ErrSnapshotInvalid classifies as permanent_validation per the error
// taxonomy; callers should not retry.
var ErrSnapshotInvalid = errors.New("snapshot_invalid")

// Get extracts metadata.render_snapshot and validates the required fields
// are present: template_id/version/name, menu_data.{id,name,items[]},
// export_options, snapshot_created_at, snapshot_version.
func Get(metadata json.RawMessage) (jobstore.Snapshot, error) {
	var m jobstore.Metadata
	if err := json.Unmarshal(metadata, &m); err != nil {
		return jobstore.Snapshot{}, fmt.Errorf("%w: malformed metadata: %v", ErrSnapshotInvalid, err)
	}
	if len(m.RenderSnapshot) == 0 {
		return jobstore.Snapshot{}, fmt.Errorf("%w: missing render_snapshot", ErrSnapshotInvalid)
	}

	var snap jobstore.Snapshot
	if err := json.Unmarshal(m.RenderSnapshot, &snap); err != nil {
		return jobstore.Snapshot{}, fmt.Errorf("%w: malformed render_snapshot: %v", ErrSnapshotInvalid, err)
	}

	if err := validate(snap); err != nil {
		return jobstore.Snapshot{}, err
	}
	// The enqueuer writes the friendly download name at the metadata level;
	// surface it on the snapshot so the Processor has one place to look.
	if snap.DisplayName == "" {
		snap.DisplayName = m.DisplayName
	}
	return snap, nil
}

func validate(s jobstore.Snapshot) error {
	missing := func(cond bool, field string) error {
		if cond {
			return fmt.Errorf("%w: missing %s", ErrSnapshotInvalid, field)
		}
		return nil
	}
	checks := []error{
		missing(s.TemplateID == "", "template_id"),
		missing(s.TemplateVersion == "", "template_version"),
		missing(s.TemplateName == "", "template_name"),
		missing(s.MenuData.ID == "", "menu_data.id"),
		missing(s.MenuData.Name == "", "menu_data.name"),
		missing(s.MenuData.Items == nil, "menu_data.items"),
		missing(s.ExportOptions.Format == "", "export_options"),
		missing(s.SnapshotCreatedAt.IsZero(), "snapshot_created_at"),
		missing(s.SnapshotVersion == "", "snapshot_version"),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}
