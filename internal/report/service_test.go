package report

import (
	"strings"
	"testing"
	"time"

	"teamflow/api/internal/project"
	"teamflow/api/internal/store"
)

func TestRenderHTMLIncludesBreakdowns(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rep := &project.Report{
		Project: store.Project{
			Name:        "Launch Plan",
			Description: "Q2 release",
			Status:      "in_progress",
			StartDate:   &start,
		},
		TotalTasks:     8,
		CompletionRate: 75,
		MemberCount:    3,
		TaskStatus: []store.StatusCount{
			{Status: "done", Count: 6},
			{Status: "todo", Count: 2},
		},
		Priority: []store.PriorityCount{
			{Priority: "high", Count: 5},
		},
		Workload: []store.MemberWorkload{
			{Name: "Alice", AssignedTasks: 4, WorkloadPercent: 50},
		},
	}

	html, err := renderHTML(templateData(rep))
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{
		"Launch Plan",
		"Q2 release",
		"75%",
		"Mar 1, 2026",
		"<td>done</td><td>6</td>",
		"<td>high</td><td>5</td>",
		"<td>Alice</td><td>4</td><td>50%</td>",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
}

func TestRenderHTMLOmitsEmptySections(t *testing.T) {
	rep := &project.Report{Project: store.Project{Name: "Empty"}}

	html, err := renderHTML(templateData(rep))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(html, "Member Workload") {
		t.Errorf("workload section rendered with no rows")
	}
	if strings.Contains(html, "Tasks by Status") {
		t.Errorf("status section rendered with no rows")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Launch Plan Report", "Launch-Plan-Report"},
		{"weird/:*chars", "weirdchars"},
		{"", "report"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b<c>")
	if got != "a%20b%3Cc%3E" {
		t.Errorf("unexpected encoding: %q", got)
	}
}
