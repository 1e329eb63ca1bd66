// Package preflight checks that a deployment can answer queries: the local
// data directory is usable, every configured engine answers a ping, and each
// workspace's metric, embeddings model and cross-encoder resolve.
//
//	checker := preflight.New(preflight.WithDataDir(dir), preflight.WithPingers(checks))
//	results := checker.Run(ctx, workspaces)
//	if preflight.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
