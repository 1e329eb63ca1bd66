package preflight

import (
	"context"
	"fmt"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/workspace"
)

// CheckWorkspace checks what a query against ws resolves before any I/O:
// the engine, the metric, the embeddings model and the cross-encoder.
// An unreachable embeddings provider is a warning; everything else fails.
func (c *Checker) CheckWorkspace(ctx context.Context, ws *workspace.Workspace) []CheckResult {
	prefix := "workspace_" + ws.ID + "_"
	var results []CheckResult

	engine := CheckResult{Name: prefix + "engine", Required: true, Status: StatusPass, Message: ws.Engine}
	if c.pingers != nil {
		if _, ok := c.pingers[ws.Engine]; !ok {
			engine.Status = StatusFail
			engine.Message = fmt.Sprintf("engine %s is not configured", ws.Engine)
		}
	}
	results = append(results, engine)

	metric := CheckResult{Name: prefix + "metric", Required: true, Status: StatusPass, Message: ws.Metric}
	if _, err := search.ParseMetric(ws.Metric); err != nil {
		metric.Status = StatusFail
		metric.Message = amerrors.UnsupportedMetric(ws.Metric).Message
	}
	results = append(results, metric)

	if c.embedders != nil {
		results = append(results, c.checkEmbedder(ctx, prefix, ws))
	}
	if c.rankers != nil && ws.Reranks() {
		rk := CheckResult{Name: prefix + "cross_encoder", Required: true, Status: StatusPass, Message: ws.CrossEncoderModelName}
		if _, err := c.rankers.Resolve(ws.CrossEncoderModelProvider, ws.CrossEncoderModelName); err != nil {
			rk.Status = StatusFail
			rk.Message = err.Error()
		}
		results = append(results, rk)
	}
	return results
}

func (c *Checker) checkEmbedder(ctx context.Context, prefix string, ws *workspace.Workspace) CheckResult {
	result := CheckResult{Name: prefix + "embeddings", Required: true}

	e, err := c.embedders.Resolve(ws.EmbeddingsModelProvider, ws.EmbeddingsModelName)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if !e.Available(ctx) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s/%s is not reachable", ws.EmbeddingsModelProvider, ws.EmbeddingsModelName)
		return result
	}
	result.Status = StatusPass
	result.Message = e.ModelName()
	return result
}
