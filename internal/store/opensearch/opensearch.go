// Package opensearch is the OpenSearch k-NN engine. Each workspace is one
// index whose documents carry chunk fields and a content_embeddings vector.
package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"
	requestsigner "github.com/opensearch-project/opensearch-go/v4/signer/awsv2"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/workspace"
)

// EngineName is the workspace engine value served by this package.
const EngineName = workspace.EngineOpenSearch

// analyzedLanguages have a content.<language> subfield in the index mapping.
var analyzedLanguages = map[string]bool{
	"arabic": true, "armenian": true, "basque": true, "bengali": true,
	"brazilian": true, "bulgarian": true, "catalan": true, "czech": true,
	"danish": true, "dutch": true, "english": true, "estonian": true,
	"finnish": true, "french": true, "galician": true, "german": true,
	"greek": true, "hindi": true, "hungarian": true, "indonesian": true,
	"irish": true, "italian": true, "latvian": true, "lithuanian": true,
	"norwegian": true, "persian": true, "portuguese": true, "romanian": true,
	"russian": true, "sorani": true, "spanish": true, "swedish": true,
	"thai": true, "turkish": true,
}

// Config configures the OpenSearch client. When AWSRegion is set requests
// are SigV4 signed for AWSService ("es" for managed domains, "aoss" for
// serverless collections) and the basic auth credentials are ignored.
type Config struct {
	Endpoint           string
	Username           string
	Password           string
	AWSRegion          string
	AWSService         string
	Timeout            time.Duration
	MaxRetries         int
	InsecureSkipVerify bool
}

// Store queries workspace indices through the OpenSearch API client.
type Store struct {
	client    *opensearchapi.Client
	transport *http.Transport
	timeout   time.Duration
}

var (
	_ search.VectorSearcher  = (*Store)(nil)
	_ search.KeywordSearcher = (*Store)(nil)
)

// New creates a store. ctx bounds loading AWS credentials for signing.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, amerrors.ConfigError("opensearch endpoint is required", nil)
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, amerrors.ConfigError("invalid opensearch endpoint", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	transport := &http.Transport{
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     60 * time.Second,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec // opt-in for self-signed clusters
	}

	clientCfg := opensearch.Config{
		Addresses:     []string{strings.TrimRight(cfg.Endpoint, "/")},
		Transport:     transport,
		RetryOnStatus: []int{http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
		MaxRetries:    cfg.MaxRetries,
		DisableRetry:  cfg.MaxRetries == 0,
		RetryBackoff:  backoff,
	}
	if cfg.AWSRegion != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, amerrors.ConfigError("load aws credentials for opensearch", err)
		}
		service := cfg.AWSService
		if service == "" {
			service = "es"
		}
		signer, err := requestsigner.NewSignerWithService(awsCfg, service)
		if err != nil {
			return nil, amerrors.ConfigError("create opensearch request signer", err)
		}
		clientCfg.Signer = signer
	} else {
		clientCfg.Username = cfg.Username
		clientCfg.Password = cfg.Password
	}

	client, err := opensearchapi.NewClient(opensearchapi.Config{Client: clientCfg})
	if err != nil {
		return nil, amerrors.ConfigError("create opensearch client", err)
	}
	return &Store{client: client, transport: transport, timeout: cfg.Timeout}, nil
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<min(attempt, 6)) * 50 * time.Millisecond
}

// Adapters returns the engine's capability pair.
func (s *Store) Adapters() search.Adapters {
	return search.Adapters{
		Engine:  EngineName,
		Vector:  s,
		Keyword: s,
	}
}

// IndexName maps a workspace id to its index.
func IndexName(workspaceID string) string {
	return strings.ToLower(strings.ReplaceAll(workspaceID, "-", ""))
}

// ContentField returns the analyzed content field for language.
func ContentField(language string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if analyzedLanguages[lang] {
		return "content." + lang
	}
	return "content"
}

var sourceFields = []string{
	"chunk_id", "workspace_id", "document_id", "document_sub_id", "document_type",
	"document_sub_type", "path", "language", "title", "content", "content_complement",
	"metadata",
}

// VectorSearch runs a k-NN query. The raw _score is a similarity, larger is
// better, and is carried unchanged.
func (s *Store) VectorSearch(ctx context.Context, ws *workspace.Workspace, embedding []float32, metric search.Metric, limit int) ([]*search.Candidate, error) {
	if !metric.Valid() {
		return nil, amerrors.UnsupportedMetric(string(metric))
	}
	body := map[string]any{
		"size":    limit,
		"_source": sourceFields,
		"query": map[string]any{
			"knn": map[string]any{
				"content_embeddings": map[string]any{
					"vector": embedding,
					"k":      limit,
				},
			},
		},
	}
	hits, err := s.search(ctx, ws.ID, body)
	if err != nil {
		return nil, err
	}
	return toCandidates(hits, func(c *search.Candidate, score float64) {
		c.VectorSearchScore = &score
	})
}

// KeywordSearch runs a match query against the language's analyzed field.
func (s *Store) KeywordSearch(ctx context.Context, ws *workspace.Workspace, query, language string, limit int) ([]*search.Candidate, error) {
	body := map[string]any{
		"size":    limit,
		"_source": sourceFields,
		"query": map[string]any{
			"match": map[string]any{
				ContentField(language): map[string]any{"query": query},
			},
		},
	}
	hits, err := s.search(ctx, ws.ID, body)
	if err != nil {
		return nil, err
	}
	return toCandidates(hits, func(c *search.Candidate, score float64) {
		c.KeywordSearchScore = &score
	})
}

// Ping checks that the cluster answers.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := s.client.Ping(ctx, &opensearchapi.PingReq{})
	if err == nil && resp != nil && resp.IsError() {
		err = fmt.Errorf("opensearch answered status %d", resp.StatusCode)
	}
	if err != nil {
		return s.transportError(ctx, "opensearch ping", err)
	}
	return nil
}

// Close releases idle connections.
func (s *Store) Close() {
	s.transport.CloseIdleConnections()
}

func (s *Store) search(ctx context.Context, workspaceID string, body map[string]any) ([]opensearchapi.SearchHit, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, amerrors.InternalError("encode opensearch query", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{IndexName(workspaceID)},
		Body:    bytes.NewReader(payload),
	})
	if err != nil {
		if status := statusOf(resp); status != 0 {
			return nil, amerrors.New(amerrors.ErrCodeSearchFailed, "opensearch query", err).
				WithDetail("workspace_id", workspaceID).
				WithDetail("status", fmt.Sprint(status))
		}
		return nil, s.transportError(ctx, "opensearch query", err)
	}
	return resp.Hits.Hits, nil
}

// statusOf returns the HTTP status of a failed search, or 0 when the cluster
// never answered.
func statusOf(resp *opensearchapi.SearchResp) int {
	if resp == nil {
		return 0
	}
	if raw := resp.Inspect().Response; raw != nil {
		return raw.StatusCode
	}
	return 0
}

func (s *Store) transportError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return amerrors.New(amerrors.ErrCodeNetworkTimeout, op+" timed out", err)
		}
		return ctx.Err()
	}
	return amerrors.NetworkError(op+" failed", err)
}

func toCandidates(hits []opensearchapi.SearchHit, setScore func(*search.Candidate, float64)) ([]*search.Candidate, error) {
	out := make([]*search.Candidate, 0, len(hits))
	for _, hit := range hits {
		c := &search.Candidate{}
		if len(hit.Source) > 0 {
			if err := json.Unmarshal(hit.Source, &c.Chunk); err != nil {
				return nil, amerrors.InternalError("decode opensearch hit "+hit.ID, err)
			}
		}
		if c.ChunkID == "" {
			c.ChunkID = hit.ID
		}
		setScore(c, float64(hit.Score))
		out = append(out, c)
	}
	return out, nil
}
