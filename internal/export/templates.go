package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplates *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"join": strings.Join,
		"starbar": func(stars float64) string {
			full := int(stars)
			bar := strings.Repeat("★", full)
			if stars-float64(full) >= 0.5 {
				bar += "½"
			}
			return bar
		},
	}
	reportTemplates = template.Must(template.New("reports").Funcs(funcMap).ParseFS(templateFS, "templates/*.html"))
}

// TemplateData holds data for report template rendering.
type TemplateData struct {
	Title       string
	GeneratedBy string
	GeneratedAt time.Time
	Meeting     *MeetingInfo
	Attendees   []string
	Rows        []Row
}

// RenderReportHTML renders the template for the given report kind.
func RenderReportHTML(kind Kind, data TemplateData) (string, error) {
	name := string(kind) + ".html"
	if reportTemplates.Lookup(name) == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	var buf bytes.Buffer
	if err := reportTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
