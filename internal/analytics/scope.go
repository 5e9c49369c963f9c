package analytics

import (
	"context"

	"pulseboard/internal/domain"
)

// Scope is the set of project ids a caller is authorized to see in a report.
// An empty scope yields all-zero metrics, not an error, so dashboards stay
// resilient to membership races.
type Scope struct {
	ProjectIDs []string
}

func (s Scope) Empty() bool { return len(s.ProjectIDs) == 0 }

func (s Scope) Contains(projectID string) bool {
	for _, id := range s.ProjectIDs {
		if id == projectID {
			return true
		}
	}
	return false
}

// ResolveScope returns the project ids visible to the caller. Admins and
// managers see everything (narrowed to requestedProjectID when given, with no
// membership check); every other role sees only projects where it holds a
// membership, intersected with the requested project.
func ResolveScope(ctx context.Context, store Store, callerID string, role domain.Role, requestedProjectID string) (Scope, error) {
	if role.Privileged() {
		if requestedProjectID != "" {
			return Scope{ProjectIDs: []string{requestedProjectID}}, nil
		}
		ids, err := store.ListProjectIDs(ctx)
		if err != nil {
			return Scope{}, err
		}
		return Scope{ProjectIDs: ids}, nil
	}
	ids, err := store.MemberProjectIDs(ctx, callerID)
	if err != nil {
		return Scope{}, err
	}
	if requestedProjectID == "" {
		return Scope{ProjectIDs: ids}, nil
	}
	for _, id := range ids {
		if id == requestedProjectID {
			return Scope{ProjectIDs: []string{requestedProjectID}}, nil
		}
	}
	return Scope{}, nil
}
