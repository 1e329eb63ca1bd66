package preflight

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/workspace"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Pinger is an engine backend that can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EmbedderResolver resolves workspace embeddings models.
type EmbedderResolver interface {
	Resolve(provider, model string) (embed.Embedder, error)
}

// RankerResolver resolves workspace cross-encoders.
type RankerResolver interface {
	Resolve(provider, model string) (search.Ranker, error)
}

// Checker performs preflight validation checks.
type Checker struct {
	dataDir   string
	pingers   map[string]Pinger
	embedders EmbedderResolver
	rankers   RankerResolver
	timeout   time.Duration
}

// Option configures a Checker.
type Option func(*Checker)

// WithDataDir enables the disk and permission checks on dir.
func WithDataDir(dir string) Option {
	return func(c *Checker) { c.dataDir = dir }
}

// WithPingers sets the engine backends, keyed by engine name.
func WithPingers(p map[string]Pinger) Option {
	return func(c *Checker) { c.pingers = p }
}

// WithEmbedders enables the embeddings model checks.
func WithEmbedders(r EmbedderResolver) Option {
	return func(c *Checker) { c.embedders = r }
}

// WithRankers enables the cross-encoder checks.
func WithRankers(r RankerResolver) Option {
	return func(c *Checker) { c.rankers = r }
}

// WithTimeout bounds each network probe.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) { c.timeout = d }
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run runs every enabled check. Engines are probed in name order and
// workspaces in the order given.
func (c *Checker) Run(ctx context.Context, workspaces []*workspace.Workspace) []CheckResult {
	var results []CheckResult

	if c.dataDir != "" {
		results = append(results, c.CheckDiskSpace(c.dataDir), c.CheckWritePermissions(c.dataDir))
	}
	for _, name := range slices.Sorted(maps.Keys(c.pingers)) {
		results = append(results, c.CheckEngine(ctx, name, c.pingers[name]))
	}
	for _, ws := range workspaces {
		results = append(results, c.CheckWorkspace(ctx, ws)...)
	}
	return results
}

// HasCriticalFailures returns true if any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	return slices.ContainsFunc(results, CheckResult.IsCritical)
}

// SummaryStatus returns "failed", "ready_with_warnings" or "ready".
func SummaryStatus(results []CheckResult) string {
	if HasCriticalFailures(results) {
		return "failed"
	}
	for _, r := range results {
		if r.Status != StatusPass {
			return "ready_with_warnings"
		}
	}
	return "ready"
}

// CheckWritePermissions checks that dir can be created and written to.
func (c *Checker) CheckWritePermissions(dir string) CheckResult {
	result := CheckResult{Name: "data_dir_writable", Required: true}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", dir, err)
		return result
	}
	testFile := filepath.Join(dir, ".amanrag-preflight-test")
	f, err := os.Create(testFile)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(testFile)

	result.Status = StatusPass
	result.Message = dir
	return result
}

// CheckEngine pings one engine backend.
func (c *Checker) CheckEngine(ctx context.Context, name string, p Pinger) CheckResult {
	result := CheckResult{Name: "engine_" + name, Required: true}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	result.Status = StatusPass
	result.Message = "reachable"
	return result
}
