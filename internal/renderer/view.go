package renderer

import (
	"encoding/json"
	"html/template"

	"github.com/tablecraft/export-worker/internal/jobstore"
)

// MenuItem is the denormalized per-item shape the spec's menu payload
// carries: name, price, category, currency, modifiers, variants, and
// dietary indicators. Fields absent in a given item are left zero-valued.
type MenuItem struct {
	Name       string   `json:"name"`
	Price      float64  `json:"price"`
	Currency   string   `json:"currency"`
	Category   string   `json:"category"`
	Modifiers  []string `json:"modifiers,omitempty"`
	Variants   []string `json:"variants,omitempty"`
	Indicators []string `json:"indicators,omitempty"`
}

// menuView is the data handed to the compiled html/template.
type menuView struct {
	TemplateName  string
	DisplayName   string
	MenuName      string
	Items         []MenuItem
	IncludeImages bool
	IncludePrices bool
	Orientation   string
	Format        string
}

func viewFromSnapshot(snap jobstore.Snapshot) menuView {
	items := make([]MenuItem, 0, len(snap.MenuData.Items))
	for _, raw := range snap.MenuData.Items {
		var item MenuItem
		if err := json.Unmarshal(raw, &item); err == nil {
			items = append(items, item)
		}
	}
	displayName := snap.DisplayName
	if displayName == "" {
		displayName = snap.MenuData.Name
	}
	return menuView{
		TemplateName:  snap.TemplateName,
		DisplayName:   displayName,
		MenuName:      snap.MenuData.Name,
		Items:         items,
		IncludeImages: snap.ExportOptions.IncludeImages,
		IncludePrices: snap.ExportOptions.IncludePrices,
		Orientation:   snap.ExportOptions.Orientation,
		Format:        snap.ExportOptions.Format,
	}
}

var templateFuncs = template.FuncMap{
	"join": func(items []string, sep string) string {
		out := ""
		for i, s := range items {
			if i > 0 {
				out += sep
			}
			out += s
		}
		return out
	},
}
