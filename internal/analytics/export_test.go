package analytics

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"testing"
)

func buildExportReport() *OverviewReport {
	users := UserSummary{
		TotalUsers:       3,
		ActiveLast7Days:  2,
		RoleDistribution: map[string]int{"admin": 1, "developer": 2},
	}
	return &OverviewReport{
		GeneratedAt: testNow.Format("2006-01-02T15:04:05Z"),
		RangeDays:   30,
		Projects:    ProjectSummary{Total: 2, Active: 2, OnTrack: 1, Overdue: 1},
		Tasks: TaskSummary{
			Total:          4,
			ByStatus:       map[string]int{"done": 2, "todo": 1, "in_progress": 1},
			CompletionRate: 50,
		},
		Time:  TimeSummary{TotalHours: 12.5, BillableHours: 10, BillablePercent: 80, EntryCount: 3, AvgHoursPerDay: 0.42},
		Users: &users,
		Distribution: TaskDistribution{
			ByStatus:   map[string]int{"done": 2, "todo": 1, "in_progress": 1},
			ByPriority: map[string]int{"medium": 4},
			ByProject:  []ProjectCount{{ProjectID: "p1", Name: `Apollo, "phase 1"`, Count: 4}},
		},
		Progress: []ProjectProgressEntry{{ProjectID: "p1", Name: `Apollo, "phase 1"`, TotalTasks: 4, CompletedTasks: 2, Progress: 50}},
		Trend:    []TrendPoint{{Date: "2024-06-14", Total: 2, Completed: 1, CompletionRate: 50}},
		Activity: []FeedEntry{{Type: "task_created", EntityName: "Fix login", OccurredAt: ts(1)}},
	}
}

func TestExportOverviewJSON(t *testing.T) {
	rep := buildExportReport()
	payload, contentType, err := ExportOverview(rep, "boss", FormatJSON, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "application/json" {
		t.Fatalf("content type: %s", contentType)
	}
	var out Export
	if err := json.Unmarshal(payload, &out); err != nil {
		t.Fatalf("payload not valid json: %v", err)
	}
	if out.ExportedBy != "boss" {
		t.Fatalf("exported_by: %s", out.ExportedBy)
	}
	if out.Report == nil || out.Report.Tasks.Total != rep.Tasks.Total {
		t.Fatalf("report body: %+v", out.Report)
	}

	// Empty format defaults to JSON.
	_, contentType, err = ExportOverview(rep, "boss", "", testNow)
	if err != nil || contentType != "application/json" {
		t.Fatalf("default format: %s %v", contentType, err)
	}
}

func TestExportOverviewCSV(t *testing.T) {
	rep := buildExportReport()
	payload, contentType, err := ExportOverview(rep, "boss", FormatCSV, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "text/csv" {
		t.Fatalf("content type: %s", contentType)
	}
	rows, err := csv.NewReader(bytes.NewReader(payload)).ReadAll()
	if err != nil {
		t.Fatalf("payload not valid csv: %v", err)
	}
	if len(rows) == 0 || rows[0][0] != "section" {
		t.Fatalf("missing header row: %v", rows)
	}
	values := map[string]string{}
	for _, row := range rows[1:] {
		if len(row) != 3 {
			t.Fatalf("row width: %v", row)
		}
		values[row[0]+"/"+row[1]] = row[2]
	}
	// CSV figures come from the same assembled report as the JSON export.
	if values["tasks/total"] != "4" {
		t.Fatalf("tasks total: %q", values["tasks/total"])
	}
	if values["tasks_by_status/done"] != "2" {
		t.Fatalf("tasks by status: %q", values["tasks_by_status/done"])
	}
	if values["time/total_hours"] != "12.5" {
		t.Fatalf("total hours: %q", values["time/total_hours"])
	}
	if values["users_by_role/developer"] != "2" {
		t.Fatalf("users by role: %q", values["users_by_role/developer"])
	}
	// Project names containing commas and quotes survive the round-trip.
	if values[`tasks_by_project/Apollo, "phase 1"`] != "4" {
		t.Fatalf("quoted project name lost: %v", values)
	}
	if values["trend_completed/2024-06-14"] != "1" {
		t.Fatalf("trend row: %v", values)
	}
	if values["meta/exported_by"] != "boss" {
		t.Fatalf("meta exported_by: %v", values["meta/exported_by"])
	}
}

func TestExportOverviewUnsupportedFormat(t *testing.T) {
	_, _, err := ExportOverview(buildExportReport(), "boss", "xml", testNow)
	var unsupported UnsupportedFormatError
	if !errors.As(err, &unsupported) || unsupported.Format != "xml" {
		t.Fatalf("expected UnsupportedFormatError, got %v", err)
	}
}
