package search

import (
	"context"
	"slices"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/workspace"
)

// WorkspaceSource looks up workspace configuration by id.
type WorkspaceSource interface {
	Get(id string) (*workspace.Workspace, error)
	List() []*workspace.Workspace
}

// Service routes queries to the engine a workspace is configured with.
type Service struct {
	workspaces WorkspaceSource
	engines    map[string]*Engine
}

// NewService creates a service over the given engines, keyed by name.
func NewService(workspaces WorkspaceSource, engines ...*Engine) *Service {
	byName := make(map[string]*Engine, len(engines))
	for _, e := range engines {
		byName[e.Name()] = e
	}
	return &Service{workspaces: workspaces, engines: byName}
}

// Search runs req against the workspace with the given id.
func (s *Service) Search(ctx context.Context, workspaceID string, req QueryRequest) (*Payload, error) {
	ws, err := s.workspaces.Get(workspaceID)
	if err != nil {
		return nil, err
	}
	engine, ok := s.engines[ws.Engine]
	if !ok {
		return nil, amerrors.UnsupportedEngine(ws.Engine)
	}
	return engine.Query(ctx, ws, req)
}

// Workspaces lists the configured workspaces.
func (s *Service) Workspaces() []*workspace.Workspace {
	return s.workspaces.List()
}

// Engines returns the names of the engines the service can route to.
func (s *Service) Engines() []string {
	names := make([]string, 0, len(s.engines))
	for name := range s.engines {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
