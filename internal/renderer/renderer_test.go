package renderer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tablecraft/export-worker/internal/jobstore"
)

func snapshot(t *testing.T, version string) jobstore.Snapshot {
	t.Helper()
	item, err := json.Marshal(MenuItem{Name: "Soup", Price: 4.5, Currency: "USD", Indicators: []string{"vegan"}})
	require.NoError(t, err)
	return jobstore.Snapshot{
		TemplateID:      "tpl-1",
		TemplateVersion: version,
		TemplateName:    "Classic",
		MenuData:        jobstore.MenuData{ID: "menu-1", Name: "Dinner", Items: []json.RawMessage{item}},
		ExportOptions:   jobstore.ExportOptions{Format: "A4", Orientation: "portrait", IncludePrices: true},
		DisplayName:     "Dinner Menu",
	}
}

func TestRenderProducesHTMLContainingMenuItems(t *testing.T) {
	r, err := NewDefault()
	require.NoError(t, err)

	doc, err := r.Render(snapshot(t, "v1"))
	require.NoError(t, err)
	require.Contains(t, string(doc.HTML), "Soup")
	require.Contains(t, string(doc.HTML), "Dinner Menu")
	require.Equal(t, "text/html; charset=utf-8", doc.ContentType)
}

func TestRenderIsDeterministic(t *testing.T) {
	r, err := NewDefault()
	require.NoError(t, err)

	snap := snapshot(t, "v2")
	first, err := r.Render(snap)
	require.NoError(t, err)
	second, err := r.Render(snap)
	require.NoError(t, err)
	require.Equal(t, first.HTML, second.HTML)
}

func TestRenderUnknownTemplateVersionIsPermanent(t *testing.T) {
	r, err := NewDefault()
	require.NoError(t, err)

	_, err = r.Render(snapshot(t, "v999"))
	require.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestRenderEscapesUserSuppliedContent(t *testing.T) {
	r, err := NewDefault()
	require.NoError(t, err)

	snap := snapshot(t, "v1")
	item, _ := json.Marshal(MenuItem{Name: "<script>alert(1)</script>"})
	snap.MenuData.Items = []json.RawMessage{item}

	doc, err := r.Render(snap)
	require.NoError(t, err)
	require.NotContains(t, string(doc.HTML), "<script>alert(1)</script>")
}
