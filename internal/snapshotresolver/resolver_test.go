package snapshotresolver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const validMetadata = `{
	"render_snapshot": {
		"template_id": "tpl-1",
		"template_version": "v2",
		"template_name": "Classic",
		"menu_data": {"id": "menu-1", "name": "Dinner", "items": [{"name": "Soup"}]},
		"export_options": {"format": "A4", "orientation": "portrait"},
		"snapshot_created_at": "2026-01-01T00:00:00Z",
		"snapshot_version": "1"
	},
	"display_name": "Dinner Menu"
}`

func TestGetValidSnapshot(t *testing.T) {
	snap, err := Get([]byte(validMetadata))
	require.NoError(t, err)
	require.Equal(t, "tpl-1", snap.TemplateID)
	require.Equal(t, "Dinner", snap.MenuData.Name)
	require.Equal(t, "Dinner Menu", snap.DisplayName, "metadata display_name surfaces on the snapshot")
}

func TestGetMissingRenderSnapshot(t *testing.T) {
	_, err := Get([]byte(`{"display_name": "x"}`))
	require.ErrorIs(t, err, ErrSnapshotInvalid)
}

func TestGetMalformedMetadata(t *testing.T) {
	_, err := Get([]byte(`not json`))
	require.ErrorIs(t, err, ErrSnapshotInvalid)
}

func TestGetMissingRequiredField(t *testing.T) {
	_, err := Get([]byte(`{"render_snapshot": {"template_id": "tpl-1"}}`))
	require.ErrorIs(t, err, ErrSnapshotInvalid)
}
