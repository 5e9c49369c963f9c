package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"pulseboard/internal/domain"
	"pulseboard/internal/repo"
)

// TrendPoint is one calendar day in the productivity series.
type TrendPoint struct {
	Date           string `json:"date" format:"date"`
	Completed      int    `json:"completed"`
	Total          int    `json:"total"`
	CompletionRate int    `json:"completion_rate"`
}

// AllocationEntry is one priority bucket of completed-task hours.
type AllocationEntry struct {
	Priority     string  `json:"priority"`
	TotalHours   float64 `json:"total_hours"`
	TaskCount    int     `json:"task_count"`
	AverageHours float64 `json:"average_hours"`
}

// CompletionTrend builds one point per calendar day from now-rangeDays to
// now inclusive, oldest first. A task lands on the day of its last update;
// completed means status done.
func CompletionTrend(ctx context.Context, store Store, scope Scope, f DateFilter) ([]TrendPoint, error) {
	startDay := f.Now.AddDate(0, 0, -f.RangeDays).Truncate(24 * time.Hour)
	series := make([]TrendPoint, 0, f.RangeDays+1)
	index := make(map[string]int, f.RangeDays+1)
	for i := 0; i <= f.RangeDays; i++ {
		date := startDay.AddDate(0, 0, i).Format("2006-01-02")
		index[date] = len(series)
		series = append(series, TrendPoint{Date: date})
	}
	if !scope.Empty() {
		tasks, err := store.ListTasks(ctx, repo.TaskFilters{
			ProjectIDs:   scope.ProjectIDs,
			UpdatedAfter: startDay.Format(time.RFC3339),
		})
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			updated, err := time.Parse(time.RFC3339, t.UpdatedAt)
			if err != nil {
				continue
			}
			i, ok := index[updated.UTC().Format("2006-01-02")]
			if !ok {
				continue
			}
			series[i].Total++
			if t.Status == domain.TaskDone {
				series[i].Completed++
			}
		}
	}
	for i := range series {
		series[i].CompletionRate = ratePercent(series[i].Completed, series[i].Total)
	}
	return series, nil
}

// TimeAllocation groups completed tasks carrying actual hours by priority,
// sorted by total hours descending.
func TimeAllocation(ctx context.Context, store Store, scope Scope, f DateFilter) ([]AllocationEntry, error) {
	if scope.Empty() {
		return []AllocationEntry{}, nil
	}
	tasks, err := store.ListTasks(ctx, repo.TaskFilters{
		ProjectIDs:   scope.ProjectIDs,
		StatusIn:     []string{domain.TaskDone},
		UpdatedAfter: f.CutoffRFC3339(),
	})
	if err != nil {
		return nil, err
	}
	buckets := map[string]*AllocationEntry{}
	var order []string
	for _, t := range tasks {
		if t.ActualHours == nil {
			continue
		}
		b := buckets[t.Priority]
		if b == nil {
			b = &AllocationEntry{Priority: t.Priority}
			buckets[t.Priority] = b
			order = append(order, t.Priority)
		}
		b.TotalHours += *t.ActualHours
		b.TaskCount++
	}
	res := make([]AllocationEntry, 0, len(order))
	for _, p := range order {
		b := buckets[p]
		b.AverageHours = math.Round(b.TotalHours/float64(b.TaskCount)*100) / 100
		res = append(res, *b)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].TotalHours > res[j].TotalHours })
	return res, nil
}
