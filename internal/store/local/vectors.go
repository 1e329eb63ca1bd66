package local

import (
	"bufio"
	"fmt"
	"os"
	"slices"

	"github.com/coder/hnsw"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/search"
)

type distanceFunc func(a, b []float32) float32

// innerDistance is the negated dot product, so smaller is closer like the
// other metrics.
func innerDistance(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return -dot
}

func distanceFor(metric search.Metric) (distanceFunc, error) {
	switch metric {
	case search.MetricCosine:
		return hnsw.CosineDistance, nil
	case search.MetricL2:
		return hnsw.EuclideanDistance, nil
	case search.MetricInner:
		return innerDistance, nil
	default:
		return nil, amerrors.UnsupportedMetric(string(metric))
	}
}

// graphMetric reports whether metric gets an ANN graph. Inner product is not
// a distance the graph encoding can name, so it is always scanned exactly.
func graphMetric(metric search.Metric) bool {
	return metric == search.MetricCosine || metric == search.MetricL2
}

func newGraph(metric search.Metric) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	if metric == search.MetricL2 {
		g.Distance = hnsw.EuclideanDistance
	} else {
		g.Distance = hnsw.CosineDistance
	}
	g.M = 16
	g.EfSearch = 64
	g.Ml = 0.25
	return g
}

// writeGraph builds a graph over vectors and exports it atomically to path.
func writeGraph(path string, metric search.Metric, vectors []keyedVector) error {
	g := newGraph(metric)
	for _, kv := range vectors {
		g.Add(hnsw.MakeNode(kv.key, kv.vector))
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create graph file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := g.Export(w); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush graph: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close graph file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename graph file: %w", err)
	}
	return nil
}

func readGraph(path string) (*hnsw.Graph[uint64], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open graph file: %w", err)
	}
	defer f.Close()

	g := hnsw.NewGraph[uint64]()
	if err := g.Import(bufio.NewReader(f)); err != nil {
		return nil, fmt.Errorf("import graph: %w", err)
	}
	return g, nil
}

type vectorHit struct {
	key      uint64
	distance float64
}

// searchGraph returns the graph's approximate neighbours with distances
// recomputed under dist, ascending.
func searchGraph(g *hnsw.Graph[uint64], dist distanceFunc, query []float32, limit int) []vectorHit {
	if g.Len() == 0 || limit <= 0 {
		return nil
	}
	nodes := g.Search(query, limit)
	hits := make([]vectorHit, 0, len(nodes))
	for _, n := range nodes {
		hits = append(hits, vectorHit{key: n.Key, distance: float64(dist(query, n.Value))})
	}
	sortHits(hits)
	return hits
}

// scanVectors ranks every stored vector exactly.
func scanVectors(vectors []keyedVector, dist distanceFunc, query []float32, limit int) []vectorHit {
	if limit <= 0 {
		return nil
	}
	hits := make([]vectorHit, 0, len(vectors))
	for _, kv := range vectors {
		if len(kv.vector) != len(query) {
			continue
		}
		hits = append(hits, vectorHit{key: kv.key, distance: float64(dist(query, kv.vector))})
	}
	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func sortHits(hits []vectorHit) {
	slices.SortStableFunc(hits, func(a, b vectorHit) int {
		switch {
		case a.distance < b.distance:
			return -1
		case a.distance > b.distance:
			return 1
		default:
			return 0
		}
	})
}
