package analytics

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Export formats supported by the report exporter.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// UnsupportedFormatError reports an export format outside the known set.
type UnsupportedFormatError struct {
	Format string
}

func (e UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported export format %q", e.Format)
}

// Export wraps a fully assembled overview report with export metadata.
type Export struct {
	ExportedAt string          `json:"exported_at" format:"date-time"`
	ExportedBy string          `json:"exported_by"`
	Report     *OverviewReport `json:"report"`
}

// ExportOverview renders the overview report in the requested format and
// returns the payload with its content type. The numbers in either format
// come from the same assembled report, so they always agree.
func ExportOverview(rep *OverviewReport, callerID, format string, now time.Time) ([]byte, string, error) {
	switch format {
	case FormatJSON, "":
		payload, err := json.MarshalIndent(Export{
			ExportedAt: now.Format(time.RFC3339),
			ExportedBy: callerID,
			Report:     rep,
		}, "", "  ")
		if err != nil {
			return nil, "", err
		}
		return payload, "application/json", nil
	case FormatCSV:
		payload, err := exportCSV(rep, callerID, now)
		if err != nil {
			return nil, "", err
		}
		return payload, "text/csv", nil
	}
	return nil, "", UnsupportedFormatError{Format: format}
}

// exportCSV writes the overview as sectioned rows. encoding/csv handles
// quoting, so names containing commas or quotes survive a round-trip.
func exportCSV(rep *OverviewReport, callerID string, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"section", "metric", "value"},
		{"meta", "exported_at", now.Format(time.RFC3339)},
		{"meta", "exported_by", callerID},
		{"meta", "generated_at", rep.GeneratedAt},
		{"meta", "range_days", strconv.Itoa(rep.RangeDays)},
		{"projects", "total", strconv.Itoa(rep.Projects.Total)},
		{"projects", "active", strconv.Itoa(rep.Projects.Active)},
		{"projects", "completed", strconv.Itoa(rep.Projects.Completed)},
		{"projects", "overdue", strconv.Itoa(rep.Projects.Overdue)},
		{"projects", "on_track", strconv.Itoa(rep.Projects.OnTrack)},
		{"tasks", "total", strconv.Itoa(rep.Tasks.Total)},
		{"tasks", "overdue", strconv.Itoa(rep.Tasks.Overdue)},
		{"tasks", "high_priority", strconv.Itoa(rep.Tasks.HighPriority)},
		{"tasks", "completion_rate", strconv.Itoa(rep.Tasks.CompletionRate)},
		{"tasks", "average_completion_hours", strconv.Itoa(rep.Tasks.AverageCompletionHours)},
	}
	for _, status := range sortedKeys(rep.Tasks.ByStatus) {
		rows = append(rows, []string{"tasks_by_status", status, strconv.Itoa(rep.Tasks.ByStatus[status])})
	}
	rows = append(rows,
		[]string{"time", "total_hours", formatFloat(rep.Time.TotalHours)},
		[]string{"time", "billable_hours", formatFloat(rep.Time.BillableHours)},
		[]string{"time", "billable_percent", formatFloat(rep.Time.BillablePercent)},
		[]string{"time", "entry_count", strconv.Itoa(rep.Time.EntryCount)},
		[]string{"time", "avg_hours_per_day", formatFloat(rep.Time.AvgHoursPerDay)},
	)
	if rep.Users != nil {
		rows = append(rows,
			[]string{"users", "total_users", strconv.Itoa(rep.Users.TotalUsers)},
			[]string{"users", "active_last_7_days", strconv.Itoa(rep.Users.ActiveLast7Days)},
		)
		for _, role := range sortedKeys(rep.Users.RoleDistribution) {
			rows = append(rows, []string{"users_by_role", role, strconv.Itoa(rep.Users.RoleDistribution[role])})
		}
	}
	if rep.Personal != nil {
		rows = append(rows,
			[]string{"personal", "assigned_tasks", strconv.Itoa(rep.Personal.AssignedTasks)},
			[]string{"personal", "active_projects", strconv.Itoa(rep.Personal.ActiveProjects)},
			[]string{"personal", "completion_rate", strconv.Itoa(rep.Personal.CompletionRate)},
		)
	}
	for _, p := range rep.Distribution.ByProject {
		rows = append(rows, []string{"tasks_by_project", p.Name, strconv.Itoa(p.Count)})
	}
	for _, entry := range rep.Progress {
		rows = append(rows, []string{"project_progress", entry.Name, strconv.Itoa(entry.Progress)})
	}
	for _, point := range rep.Trend {
		rows = append(rows, []string{"trend_completed", point.Date, strconv.Itoa(point.Completed)})
	}
	for _, entry := range rep.Activity {
		rows = append(rows, []string{"activity", entry.Type + " " + entry.EntityName, entry.OccurredAt})
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
