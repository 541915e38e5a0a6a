package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/core-tools/hsu-monitor/pkg/errors"
	"github.com/core-tools/hsu-monitor/pkg/health"
	"github.com/core-tools/hsu-monitor/pkg/logging"
	"github.com/core-tools/hsu-monitor/pkg/statefile"
)

//go:embed templates/*.html
var templateFS embed.FS

// TimestampLayout formats the time shown on the page and in emails.
const TimestampLayout = "January 02, 2006 - 03:04 PM MST"

// Display holds the fields that depend only on the aggregate.
type Display struct {
	Icon        string
	Headline    string
	Description template.HTML
	ImpactHTML  template.HTML
}

type UnitRow struct {
	Name   string
	Color  health.Color
	Entity template.HTML
	Impact []string
}

// PageData is the input of both templates.
type PageData struct {
	SystemName string
	Aggregate  health.Aggregate
	Display    Display
	Units      []UnitRow
	Timestamp  string
	Webpage    string
}

type Options struct {
	SystemName string
	Webpage    string
	// Location of the rendered timestamps, local time when nil.
	Location *time.Location
}

// Renderer renders the status page and the notification email.
type Renderer struct {
	page    *template.Template
	email   *template.Template
	options Options
	logger  logging.Logger
}

func NewRenderer(options Options, logger logging.Logger) (*Renderer, error) {
	if options.SystemName == "" {
		options.SystemName = "Jarvis"
	}
	if options.Location == nil {
		options.Location = time.Local
	}

	page, err := template.ParseFS(templateFS, "templates/status.html")
	if err != nil {
		return nil, errors.NewInternalError("failed to parse status page template", err)
	}
	email, err := template.ParseFS(templateFS, "templates/email.html")
	if err != nil {
		return nil, errors.NewInternalError("failed to parse email template", err)
	}

	return &Renderer{
		page:    page,
		email:   email,
		options: options,
		logger:  logger,
	}, nil
}

// DisplayFor returns the display fields of the global status.
func (r *Renderer) DisplayFor(global health.GlobalStatus) Display {
	system := template.HTMLEscapeString(r.options.SystemName)

	switch global.Aggregate {
	case health.AggregateMaintenance:
		return Display{
			Icon:        "maintenance.png",
			Headline:    "Process Map Unreachable",
			Description: template.HTML(fmt.Sprintf("<b>Description:</b> Source feed is missing, %s has been stopped for maintenance.", system)),
		}
	case health.AggregateServiceDisrupted:
		return Display{
			Icon:        "issue.png",
			Headline:    "Service disrupted by an external factor",
			Description: "<b>Description:</b> Source feed is present but all processes have been terminated abruptly.",
		}
	case health.AggregateMainDegraded:
		return Display{
			Icon:        "notice.png",
			Headline:    "Main functionality has been degraded",
			Description: "<b>Description:</b> Main process has degraded, making child processes rogue <i>yet active.</i>",
		}
	case health.AggregatePartialDegraded:
		return Display{
			Icon:       "warning.png",
			Headline:   "Some components are degraded",
			ImpactHTML: ImpactHTML(global.RedRows()),
		}
	case health.AggregateLimited:
		return Display{
			Icon:     "ok.png",
			Headline: fmt.Sprintf("%s is up and running", r.options.SystemName),
			Description: template.HTML(fmt.Sprintf("<b>Description:</b> %s is running in limited mode. "+
				"All offline communicators and home automations are currently unavailable.", system)),
		}
	default:
		return Display{
			Icon:     "ok.png",
			Headline: fmt.Sprintf("%s is up and running", r.options.SystemName),
		}
	}
}

// ImpactHTML describes what each failed unit takes down. The first impact is the
// lead line and the rest are listed below it. All text is escaped.
func ImpactHTML(rows []health.Row) template.HTML {
	var b strings.Builder
	for _, row := range rows {
		fmt.Fprintf(&b, "<b>Impacted by %s:</b><br>", template.HTMLEscapeString(strings.ToLower(row.Name)))
		if len(row.Impact) == 0 {
			continue
		}
		fmt.Fprintf(&b, "<br>&nbsp;&nbsp;&nbsp;&nbsp;%s", template.HTMLEscapeString(row.Impact[0]))
		if rest := row.Impact[1:]; len(rest) > 0 {
			escaped := make([]string, len(rest))
			for i, impact := range rest {
				escaped[i] = template.HTMLEscapeString(impact)
			}
			fmt.Fprintf(&b, "<ul><li>%s</li></ul>", strings.Join(escaped, "</li><li>"))
		}
	}
	return template.HTML(b.String())
}

// PageData assembles the template input for global at now.
func (r *Renderer) PageData(global health.GlobalStatus, now time.Time) PageData {
	rows := global.Rows()
	units := make([]UnitRow, 0, len(rows))
	for _, row := range rows {
		units = append(units, UnitRow{
			Name:   row.Name,
			Color:  row.Color,
			Entity: template.HTML(row.Color.Entity()),
			Impact: row.Impact,
		})
	}

	return PageData{
		SystemName: r.options.SystemName,
		Aggregate:  global.Aggregate,
		Display:    r.DisplayFor(global),
		Units:      units,
		Timestamp:  now.In(r.options.Location).Format(TimestampLayout),
		Webpage:    r.options.Webpage,
	}
}

// RenderPage renders the status page.
func (r *Renderer) RenderPage(global health.GlobalStatus, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.page.Execute(&buf, r.PageData(global, now)); err != nil {
		return nil, errors.NewInternalError("failed to render status page", err)
	}
	return buf.Bytes(), nil
}

// RenderEmail renders the notification body.
func (r *Renderer) RenderEmail(global health.GlobalStatus, now time.Time) (string, error) {
	var buf bytes.Buffer
	if err := r.email.Execute(&buf, r.PageData(global, now)); err != nil {
		return "", errors.NewInternalError("failed to render email", err)
	}
	return buf.String(), nil
}

// WritePage renders the status page to path and returns the rendered content.
func (r *Renderer) WritePage(path string, global health.GlobalStatus, now time.Time) ([]byte, error) {
	content, err := r.RenderPage(global, now)
	if err != nil {
		return nil, err
	}
	if err := statefile.WriteFileAtomic(path, content, 0644); err != nil {
		return nil, err
	}
	r.logger.Infof("Status page written, path: %s, aggregate: %s, bytes: %d", path, global.Aggregate, len(content))
	return content, nil
}
