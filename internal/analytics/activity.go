package analytics

import (
	"context"
	"encoding/json"
	"sort"

	"pulseboard/internal/domain"
	"pulseboard/internal/repo"
)

// FeedEntry is one row of the recent-activity feed.
type FeedEntry struct {
	Type        string `json:"type"`
	EntityName  string `json:"entity_name"`
	UserName    string `json:"user_name"`
	ProjectName string `json:"project_name"`
	OccurredAt  string `json:"occurred_at" format:"date-time"`
}

// Per-kind caps keep each sub-query bounded below the feed limit.
const (
	feedProjectCap = 5
	feedTaskCap    = 10
	feedCommentCap = 5
)

var feedKinds = []struct {
	eventType string
	cap       int
}{
	{"project.created", feedProjectCap},
	{"task.created", feedTaskCap},
	{"task.updated", feedTaskCap},
	{"comment.added", feedCommentCap},
}

// RecentActivity merges independently capped, independently sorted activity
// streams into one reverse-chronological feed of at most limit entries.
// Truncation may drop chronological ties arbitrarily; this is a best-effort
// recency feed, not an audit trail.
func RecentActivity(ctx context.Context, store Store, scope Scope, limit int) ([]FeedEntry, error) {
	if scope.Empty() || limit <= 0 {
		return []FeedEntry{}, nil
	}
	var merged []domain.Event
	for _, kind := range feedKinds {
		events, err := store.ListRecentEvents(ctx, repo.EventFilters{
			ProjectIDs: scope.ProjectIDs,
			Type:       kind.eventType,
			Limit:      kind.cap,
		})
		if err != nil {
			return nil, err
		}
		merged = append(merged, events...)
	}
	// Each sub-list is already sorted; the concatenation is not.
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].TS != merged[j].TS {
			return merged[i].TS > merged[j].TS
		}
		return merged[i].ID > merged[j].ID
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}

	userNames, err := userNameIndex(ctx, store)
	if err != nil {
		return nil, err
	}
	projectNames, err := projectNameIndex(ctx, store, scope)
	if err != nil {
		return nil, err
	}
	feed := make([]FeedEntry, 0, len(merged))
	for _, e := range merged {
		feed = append(feed, FeedEntry{
			Type:        feedType(e.Type),
			EntityName:  entityName(e),
			UserName:    userNames[e.ActorID],
			ProjectName: projectNames[e.ProjectID],
			OccurredAt:  e.TS,
		})
	}
	return feed, nil
}

func feedType(eventType string) string {
	switch eventType {
	case "project.created":
		return "project_created"
	case "task.created":
		return "task_created"
	case "task.updated":
		return "task_updated"
	case "comment.added":
		return "comment_added"
	}
	return eventType
}

// entityName pulls the human-readable name out of the event payload.
func entityName(e domain.Event) string {
	if e.Payload == "" {
		return e.EntityID
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(e.Payload), &payload); err != nil {
		return e.EntityID
	}
	for _, key := range []string{"title", "name"} {
		if v, ok := payload[key].(string); ok && v != "" {
			return v
		}
	}
	return e.EntityID
}

func userNameIndex(ctx context.Context, store Store) (map[string]string, error) {
	users, err := store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names, nil
}

func projectNameIndex(ctx context.Context, store Store, scope Scope) (map[string]string, error) {
	projects, err := store.ListProjects(ctx, repo.ProjectFilters{IDs: scope.ProjectIDs})
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
	}
	return names, nil
}
