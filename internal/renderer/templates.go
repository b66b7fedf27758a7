package renderer

// builtinTemplates maps a template_version to its html/template source.
// Versions are additive: a worker fleet may run templates its peers don't
// yet know, in which case those jobs classify as unknown_template until
// every replica is upgraded.
var builtinTemplates = map[string]string{
	"v1": classicTemplate,
	"v2": classicTemplate,
}

const classicTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  body { font-family: Georgia, serif; margin: 2rem; color: #222; }
  h1 { text-align: center; font-size: 2rem; margin-bottom: 0.25rem; }
  .subtitle { text-align: center; color: #666; margin-bottom: 2rem; }
  .item { display: flex; justify-content: space-between; padding: 0.5rem 0; border-bottom: 1px solid #eee; }
  .item-name { font-weight: 600; }
  .item-meta { color: #888; font-size: 0.85rem; }
  .item-price { white-space: nowrap; }
  .category { margin-top: 1.5rem; font-size: 1.1rem; text-transform: uppercase; letter-spacing: 0.05em; color: #444; }
</style>
</head>
<body>
  <h1>{{.DisplayName}}</h1>
  <div class="subtitle">{{.TemplateName}}</div>
  {{range .Items}}
  <div class="item">
    <div>
      <div class="item-name">{{.Name}}</div>
      {{if .Modifiers}}<div class="item-meta">{{join .Modifiers ", "}}</div>{{end}}
      {{if .Indicators}}<div class="item-meta">{{join .Indicators " · "}}</div>{{end}}
    </div>
    {{if $.IncludePrices}}<div class="item-price">{{.Currency}} {{printf "%.2f" .Price}}</div>{{end}}
  </div>
  {{end}}
</body>
</html>
`
