package report

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var reportTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t any, layout string) string {
			switch v := t.(type) {
			case time.Time:
				return v.Format(layout)
			case *time.Time:
				if v != nil {
					return v.Format(layout)
				}
			}
			return ""
		},
	}
	reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(reportHTML))
}

// TemplateData holds data for report template rendering.
type TemplateData struct {
	ProjectName    string
	Description    string
	Status         string
	StartDate      *time.Time
	EndDate        *time.Time
	GeneratedAt    time.Time
	TotalTasks     int
	CompletionRate int
	MemberCount    int
	StatusRows     []CountRow
	PriorityRows   []CountRow
	WorkloadRows   []WorkloadRow
}

// CountRow is one line of a status or priority breakdown.
type CountRow struct {
	Label string
	Count int
}

// WorkloadRow is one member's share of the project's assignments.
type WorkloadRow struct {
	Name          string
	AssignedTasks int
	Percent       int
}

// renderHTML renders the report template with provided data.
func renderHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const reportHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.ProjectName}} Report</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; color: #1a1a1a; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    h2 { margin-top: 2rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .summary { display: flex; gap: 2rem; margin: 1.5rem 0; }
    .summary .card { background: #f5f5f5; padding: 1rem 1.5rem; border-left: 3px solid #333; }
    .summary .card .num { font-size: 1.8em; font-weight: bold; }
    table { width: 100%; border-collapse: collapse; margin: 1rem 0; }
    th, td { text-align: left; padding: 0.4rem 0.6rem; border-bottom: 1px solid #ddd; }
    th { background: #f5f5f5; }
  </style>
</head>
<body>
  <h1>{{.ProjectName}}</h1>
  {{if .Description}}<p>{{.Description}}</p>{{end}}
  <div class="meta">
    Status: {{.Status}}
    {{if .StartDate}} | {{formatDate .StartDate "Jan 2, 2006"}}{{end}}{{if .EndDate}} &ndash; {{formatDate .EndDate "Jan 2, 2006"}}{{end}}
    | Generated {{formatDate .GeneratedAt "Jan 2, 2006"}}
  </div>

  <div class="summary">
    <div class="card"><div class="num">{{.TotalTasks}}</div>Tasks</div>
    <div class="card"><div class="num">{{.CompletionRate}}%</div>Complete</div>
    <div class="card"><div class="num">{{.MemberCount}}</div>Members</div>
  </div>

  {{if .StatusRows}}
  <h2>Tasks by Status</h2>
  <table>
    <tr><th>Status</th><th>Count</th></tr>
    {{range .StatusRows}}<tr><td>{{.Label}}</td><td>{{.Count}}</td></tr>{{end}}
  </table>
  {{end}}

  {{if .PriorityRows}}
  <h2>Tasks by Priority</h2>
  <table>
    <tr><th>Priority</th><th>Count</th></tr>
    {{range .PriorityRows}}<tr><td>{{.Label}}</td><td>{{.Count}}</td></tr>{{end}}
  </table>
  {{end}}

  {{if .WorkloadRows}}
  <h2>Member Workload</h2>
  <table>
    <tr><th>Member</th><th>Assigned Tasks</th><th>Share</th></tr>
    {{range .WorkloadRows}}<tr><td>{{.Name}}</td><td>{{.AssignedTasks}}</td><td>{{.Percent}}%</td></tr>{{end}}
  </table>
  {{end}}
</body>
</html>`
