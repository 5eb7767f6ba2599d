// Package report renders project status reports as HTML and exports
// them to PDF through headless Chrome.
package report

import (
	"context"
	"errors"
	"time"

	"teamflow/api/internal/project"
)

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
var ErrPDFDependencyMissing = errors.New("report pdf dependency missing")

// Reporter aggregates a project's numbers.
type Reporter interface {
	Report(ctx context.Context, projectID int64) (*project.Report, error)
}

type Service struct {
	reporter Reporter
}

func NewService(reporter Reporter) *Service {
	return &Service{reporter: reporter}
}

// ExportPDF builds the report for a project and renders it to PDF.
func (s *Service) ExportPDF(ctx context.Context, projectID int64) (*Result, error) {
	rep, err := s.reporter.Report(ctx, projectID)
	if err != nil {
		return nil, err
	}

	html, err := renderHTML(templateData(rep))
	if err != nil {
		return nil, err
	}

	return renderPDF(html, rep.Project.Name+" Report")
}

// ExportHTML builds the report and returns the rendered HTML without
// the Chrome dependency, for clients that print on their own.
func (s *Service) ExportHTML(ctx context.Context, projectID int64) (string, error) {
	rep, err := s.reporter.Report(ctx, projectID)
	if err != nil {
		return "", err
	}
	return renderHTML(templateData(rep))
}

func templateData(rep *project.Report) TemplateData {
	data := TemplateData{
		ProjectName:    rep.Project.Name,
		Description:    rep.Project.Description,
		Status:         rep.Project.Status,
		StartDate:      rep.Project.StartDate,
		EndDate:        rep.Project.EndDate,
		GeneratedAt:    time.Now(),
		TotalTasks:     rep.TotalTasks,
		CompletionRate: rep.CompletionRate,
		MemberCount:    rep.MemberCount,
	}
	for _, c := range rep.TaskStatus {
		data.StatusRows = append(data.StatusRows, CountRow{Label: c.Status, Count: c.Count})
	}
	for _, c := range rep.Priority {
		data.PriorityRows = append(data.PriorityRows, CountRow{Label: c.Priority, Count: c.Count})
	}
	for _, w := range rep.Workload {
		data.WorkloadRows = append(data.WorkloadRows, WorkloadRow{
			Name:          w.Name,
			AssignedTasks: w.AssignedTasks,
			Percent:       w.WorkloadPercent,
		})
	}
	return data
}
