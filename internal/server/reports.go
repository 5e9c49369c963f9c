package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"pulseboard/internal/analytics"
)

// reportParams are the query knobs shared by every report endpoint.
type reportParams struct {
	Range     string `query:"range" example:"30d" doc:"Day range such as 7d or 30; empty uses the default"`
	ProjectID string `query:"project_id" doc:"Narrow the report to one project"`
}

func reportRequest(p Principal, params reportParams) analytics.Request {
	return analytics.Request{
		CallerID:  p.UserID,
		Role:      p.Role,
		Range:     params.Range,
		ProjectID: params.ProjectID,
	}
}

func registerReports(api huma.API, a *analytics.Assembler) {
	huma.Register(api, huma.Operation{
		OperationID: "report-overview",
		Method:      http.MethodGet,
		Path:        "/reports/overview",
		Summary:     "Dashboard overview report",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *reportParams) (*struct {
		Body analytics.OverviewReport `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := a.Overview(ctx, reportRequest(p, *input))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body analytics.OverviewReport `json:"body"`
		}{Body: *rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "report-team",
		Method:      http.MethodGet,
		Path:        "/reports/team",
		Summary:     "Team performance report",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *reportParams) (*struct {
		Body analytics.TeamReport `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := a.TeamPerformance(ctx, reportRequest(p, *input))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body analytics.TeamReport `json:"body"`
		}{Body: *rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "report-productivity",
		Method:      http.MethodGet,
		Path:        "/reports/productivity",
		Summary:     "Productivity trend report",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *reportParams) (*struct {
		Body analytics.ProductivityReport `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := a.Productivity(ctx, reportRequest(p, *input))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body analytics.ProductivityReport `json:"body"`
		}{Body: *rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "report-project",
		Method:      http.MethodGet,
		Path:        "/reports/projects/{project_id}",
		Summary:     "Single project report",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Range     string `query:"range"`
	}) (*struct {
		Body analytics.ProjectReport `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := a.ProjectStatistics(ctx, analytics.Request{
			CallerID:  p.UserID,
			Role:      p.Role,
			Range:     input.Range,
			ProjectID: input.ProjectID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body analytics.ProjectReport `json:"body"`
		}{Body: *rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "report-me",
		Method:      http.MethodGet,
		Path:        "/reports/me",
		Summary:     "Personal dashboard report",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *reportParams) (*struct {
		Body analytics.UserDashboard `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := a.Dashboard(ctx, reportRequest(p, *input))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body analytics.UserDashboard `json:"body"`
		}{Body: *rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "report-system",
		Method:      http.MethodGet,
		Path:        "/reports/system",
		Summary:     "System-wide analytics report",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *reportParams) (*struct {
		Body analytics.SystemReport `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := a.SystemAnalytics(ctx, reportRequest(p, *input))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body analytics.SystemReport `json:"body"`
		}{Body: *rep}, nil
	})

	type exportOutput struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}
	huma.Register(api, huma.Operation{
		OperationID: "report-export",
		Method:      http.MethodGet,
		Path:        "/reports/export",
		Summary:     "Export the overview report",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		reportParams
		Format string `query:"format" enum:"json,csv" default:"json"`
	}) (*exportOutput, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := a.Overview(ctx, reportRequest(p, input.reportParams))
		if err != nil {
			return nil, handleError(err)
		}
		payload, contentType, err := analytics.ExportOverview(rep, p.UserID, input.Format, a.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &exportOutput{ContentType: contentType, Body: payload}, nil
	})
}
