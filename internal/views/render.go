// Package views renders the station dashboard from embedded HTML templates.
package views

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"sync"
	"time"

	"github.com/Aquilesorei/talon/internal/composition"
	"github.com/Aquilesorei/talon/internal/controller"
	"github.com/Aquilesorei/talon/internal/store"
)

//go:embed templates
var viewsFS embed.FS

var (
	mu            sync.RWMutex
	dashboardTmpl *template.Template
)

var funcs = template.FuncMap{
	"kg":  func(v float64) string { return fmt.Sprintf("%.2f kg", v) },
	"pct": func(v float64) string { return fmt.Sprintf("%.1f %%", v) },
	"ohm": func(v float64) string { return fmt.Sprintf("%.0f Ω", v) },
	"when": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Local().Format("2006-01-02 15:04")
	},
}

// loadTemplatesFromFS parses the dashboard templates below dir.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	tmpl, err := template.New("").Funcs(funcs).ParseFS(sub, "*.html", "partials/*.html")
	if err != nil {
		return err
	}
	mu.Lock()
	dashboardTmpl = tmpl
	mu.Unlock()
	return nil
}

// LoadTemplates loads the embedded templates. Call it once during startup.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

func loaded() (*template.Template, error) {
	mu.RLock()
	defer mu.RUnlock()
	if dashboardTmpl == nil {
		return nil, errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl, nil
}

type MeasurementRow struct {
	store.Measurement
	BMICategory     string
	BodyFatCategory string
}

type DashboardData struct {
	Session      controller.Snapshot
	Profile      composition.Profile
	Scale        *store.ScaleDevice
	Measurements []MeasurementRow
}

// NewMeasurementRows attaches the category labels shown in the history table.
func NewMeasurementRows(ms []store.Measurement, male bool) []MeasurementRow {
	rows := make([]MeasurementRow, 0, len(ms))
	for _, m := range ms {
		rows = append(rows, MeasurementRow{
			Measurement:     m,
			BMICategory:     string(m.Composition.BMICategory()),
			BodyFatCategory: m.Composition.BodyFatCategory(male),
		})
	}
	return rows
}

func RenderDashboard(w io.Writer, data *DashboardData) error {
	tmpl, err := loaded()
	if err != nil {
		return err
	}
	return tmpl.ExecuteTemplate(w, "dashboard.html", data)
}

// RenderHistoryPartial executes only the history table, for fragment refresh.
func RenderHistoryPartial(w io.Writer, data *DashboardData) error {
	tmpl, err := loaded()
	if err != nil {
		return err
	}
	return tmpl.ExecuteTemplate(w, "partials/history.html", data)
}
