package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/workspace"
)

// SearchRequest is the body of POST /v1/workspaces/:id/search.
type SearchRequest struct {
	Query        string   `json:"query"`
	Limit        *int     `json:"limit,omitempty"`
	FullResponse bool     `json:"full_response"`
	Threshold    *float64 `json:"threshold,omitempty"`
}

// WorkspaceList is the body of GET /v1/workspaces.
type WorkspaceList struct {
	Workspaces []*workspace.Workspace `json:"workspaces"`
	Count      int                    `json:"count"`
}

// ClampLimit applies the default to a missing limit and bounds it to
// [MinLimit, max].
func ClampLimit(limit *int, def, maxLimit int) int {
	if limit == nil {
		return min(max(def, MinLimit), maxLimit)
	}
	return min(max(*limit, MinLimit), maxLimit)
}

func (s *Server) search(c echo.Context) error {
	var body SearchRequest
	if err := c.Bind(&body); err != nil {
		return amerrors.ValidationError("invalid request body", err)
	}

	req := search.QueryRequest{
		Query:        body.Query,
		Limit:        ClampLimit(body.Limit, s.opts.DefaultLimit, s.opts.MaxLimit),
		FullResponse: body.FullResponse,
		Threshold:    s.opts.DefaultThreshold,
	}
	if body.Threshold != nil {
		req.Threshold = *body.Threshold
	}

	payload, err := s.searcher.Search(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, payload)
}

func (s *Server) listWorkspaces(c echo.Context) error {
	list := s.searcher.Workspaces()
	return c.JSON(http.StatusOK, WorkspaceList{Workspaces: list, Count: len(list)})
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// readyz pings every dependency; any failure answers 503.
func (s *Server) readyz(c echo.Context) error {
	checks := make(map[string]string, len(s.opts.Checks))
	ready := true
	for name, p := range s.opts.Checks {
		ctx, cancel := context.WithTimeout(c.Request().Context(), s.opts.PingTimeout)
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]any{"status": status, "checks": checks})
}
