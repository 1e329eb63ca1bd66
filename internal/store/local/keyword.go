package local

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/de"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/lang/es"
	"github.com/blevesearch/bleve/v2/analysis/lang/fr"
	"github.com/blevesearch/bleve/v2/analysis/lang/it"
	"github.com/blevesearch/bleve/v2/analysis/lang/nl"
	"github.com/blevesearch/bleve/v2/analysis/lang/pt"
	"github.com/blevesearch/bleve/v2/mapping"
)

// languageAnalyzers maps a workspace language to its bleve analyzer.
var languageAnalyzers = map[string]string{
	"english":    en.AnalyzerName,
	"german":     de.AnalyzerName,
	"spanish":    es.AnalyzerName,
	"french":     fr.AnalyzerName,
	"italian":    it.AnalyzerName,
	"dutch":      nl.AnalyzerName,
	"portuguese": pt.AnalyzerName,
}

// ContentField returns the indexed field keyword queries in language run
// against: an analyzed per-language field when the workspace indexes one,
// the standard-analyzed content field otherwise.
func ContentField(language string, indexed []string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if _, ok := languageAnalyzers[lang]; !ok {
		return "content"
	}
	for _, l := range indexed {
		if strings.ToLower(l) == lang {
			return "content_" + lang
		}
	}
	return "content"
}

func keywordMapping() *mapping.IndexMappingImpl {
	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false

	content := bleve.NewTextFieldMapping()
	content.Analyzer = standard.Name
	content.Store = false
	doc.AddFieldMappingsAt("content", content)

	for lang, analyzer := range languageAnalyzers {
		field := bleve.NewTextFieldMapping()
		field.Analyzer = analyzer
		field.Store = false
		doc.AddFieldMappingsAt("content_"+lang, field)
	}

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	return im
}

// keywordDocument builds the bleve document of a chunk: the content plus one
// analyzed copy per workspace language that has an analyzer.
func keywordDocument(r Record, languages []string) map[string]any {
	text := r.Content
	if r.ContentComplement != "" {
		text += "\n" + r.ContentComplement
	}
	doc := map[string]any{"content": text}
	for _, lang := range languages {
		lang = strings.ToLower(lang)
		if _, ok := languageAnalyzers[lang]; ok {
			doc["content_"+lang] = text
		}
	}
	return doc
}

// openKeywordIndex opens an index for queries.
func openKeywordIndex(path string) (bleve.Index, error) {
	return bleve.OpenUsing(path, map[string]interface{}{"read_only": true})
}

// writeKeywordIndex indexes records into the index at path, creating it when
// missing.
func writeKeywordIndex(ctx context.Context, path string, records []Record, languages []string) error {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, keywordMapping())
	}
	if err != nil {
		return fmt.Errorf("open keyword index: %w", err)
	}

	batch := idx.NewBatch()
	for i, r := range records {
		if err := batch.Index(r.ChunkID, keywordDocument(r, languages)); err != nil {
			_ = idx.Close()
			return fmt.Errorf("index chunk %s: %w", r.ChunkID, err)
		}
		if batch.Size() >= 500 || i == len(records)-1 {
			if err := ctx.Err(); err != nil {
				_ = idx.Close()
				return err
			}
			if err := idx.Batch(batch); err != nil {
				_ = idx.Close()
				return fmt.Errorf("execute keyword batch: %w", err)
			}
			batch.Reset()
		}
	}
	return idx.Close()
}

type keywordHit struct {
	chunkID string
	score   float64
}

func searchKeyword(ctx context.Context, idx bleve.Index, query, field string, limit int) ([]keywordHit, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}
	q := bleve.NewMatchQuery(query)
	q.SetField(field)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}
	hits := make([]keywordHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, keywordHit{chunkID: h.ID, score: h.Score})
	}
	return hits, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
