package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// qdrantStatus supports both `status: "ok"` and `status: {"error":"..."}`
type qdrantStatus struct {
	State string
	Error string
}

func (s *qdrantStatus) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		s.State = strings.ToLower(v)
		return nil
	}

	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Error != "" {
		s.State = "error"
		s.Error = obj.Error
	}
	return nil
}

type qdrantEnvelope[T any] struct {
	Status qdrantStatus `json:"status"`
	Time   float64      `json:"time"`
	Result T            `json:"result"`
}

type qdrantCollectionInfo struct {
	Config struct {
		Params struct {
			Vectors json.RawMessage `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

type qdrantVectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type qdrantPoint struct {
	ID      string  `json:"id"`
	Vector  any     `json:"vector"`
	Payload Payload `json:"payload"`
}

type qdrantScoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload Payload         `json:"payload"`
}

// httpError carries the status code of a failed Qdrant call
type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return "qdrant http " + http.StatusText(e.status) + ": " + e.body
}

// QdrantIndex talks to Qdrant over its REST API
type QdrantIndex struct {
	baseURL    string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client

	mu         sync.Mutex
	resolved   bool
	vectorName string
}

// QdrantOption configures a QdrantIndex
type QdrantOption func(*QdrantIndex)

// WithCollection overrides the collection name
func WithCollection(name string) QdrantOption {
	return func(q *QdrantIndex) {
		if name != "" {
			q.collection = name
		}
	}
}

// WithDimension overrides the vector size used when creating the collection
func WithDimension(dim int) QdrantOption {
	return func(q *QdrantIndex) {
		if dim > 0 {
			q.dimension = dim
		}
	}
}

// WithAPIKey sets the api-key header sent on every request
func WithAPIKey(key string) QdrantOption {
	return func(q *QdrantIndex) {
		q.apiKey = key
	}
}

// WithVectorName fixes the named vector to use and skips detection
func WithVectorName(name string) QdrantOption {
	return func(q *QdrantIndex) {
		if name != "" {
			q.vectorName = name
			q.resolved = true
		}
	}
}

// WithUnnamedVector forces the unnamed vector configuration and skips detection
func WithUnnamedVector() QdrantOption {
	return func(q *QdrantIndex) {
		q.vectorName = ""
		q.resolved = true
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(client *http.Client) QdrantOption {
	return func(q *QdrantIndex) {
		if client != nil {
			q.client = client
		}
	}
}

// NewQdrantIndex creates a Qdrant-backed Index
func NewQdrantIndex(baseURL string, opts ...QdrantOption) *QdrantIndex {
	if baseURL == "" {
		baseURL = "http://localhost:6333"
	}

	q := &QdrantIndex{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: DefaultCollection,
		dimension:  DefaultDimension,
		client:     &http.Client{Timeout: 15 * time.Second},
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Collection returns the collection name
func (q *QdrantIndex) Collection() string {
	return q.collection
}

// EnsureCollection creates the collection (cosine distance) when it does not
// exist and caches whether points use a named vector
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	info, err := q.collectionInfo(ctx)
	if err != nil {
		return err
	}

	if info == nil {
		req := map[string]any{
			"vectors": qdrantVectorParams{Size: q.dimension, Distance: "Cosine"},
		}
		if err := q.do(ctx, http.MethodPut, q.collectionPath(""), req, nil); err != nil {
			if !strings.Contains(strings.ToLower(err.Error()), "already exists") {
				return goerr.Wrap(err, "failed to create collection", goerr.V("collection", q.collection))
			}
			if info, err = q.collectionInfo(ctx); err != nil {
				return err
			}
		}
	}

	name := ""
	if info != nil {
		if name, err = q.detectVectorName(info.Config.Params.Vectors); err != nil {
			return err
		}
	}

	q.mu.Lock()
	if !q.resolved {
		q.vectorName = name
		q.resolved = true
	}
	q.mu.Unlock()

	return nil
}

// Ping reads the collection metadata. A missing collection is an error
func (q *QdrantIndex) Ping(ctx context.Context) error {
	info, err := q.collectionInfo(ctx)
	if err != nil {
		return err
	}
	if info == nil {
		return goerr.New("collection does not exist", goerr.V("collection", q.collection))
	}
	return nil
}

// Upsert writes one point per vector, each under a fresh UUID
func (q *QdrantIndex) Upsert(ctx context.Context, vectors [][]float32, payloads []Payload) ([]string, error) {
	if len(vectors) != len(payloads) {
		return nil, goerr.New("vectors and payloads differ in length",
			goerr.V("vectors", len(vectors)),
			goerr.V("payloads", len(payloads)),
		)
	}
	if len(vectors) == 0 {
		return []string{}, nil
	}

	name, err := q.resolveVectorName(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(vectors))
	points := make([]qdrantPoint, len(vectors))
	for i, v := range vectors {
		ids[i] = uuid.NewString()
		points[i] = qdrantPoint{ID: ids[i], Vector: v, Payload: payloads[i]}
		if name != "" {
			points[i].Vector = map[string][]float32{name: v}
		}
	}

	var resp qdrantEnvelope[json.RawMessage]
	if err := q.do(ctx, http.MethodPut, q.collectionPath("/points?wait=true"), map[string]any{"points": points}, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to upsert points", goerr.V("collection", q.collection), goerr.V("count", len(points)))
	}
	if resp.Status.Error != "" {
		return nil, goerr.New("qdrant rejected upsert", goerr.V("error", resp.Status.Error))
	}

	return ids, nil
}

// Search returns the topK nearest points, highest score first
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		return []Result{}, nil
	}

	name, err := q.resolveVectorName(ctx)
	if err != nil {
		return nil, err
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if name != "" {
		req["vector"] = map[string]any{"name": name, "vector": vector}
	}

	var resp qdrantEnvelope[[]qdrantScoredPoint]
	if err := q.do(ctx, http.MethodPost, q.collectionPath("/points/search"), req, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to search points", goerr.V("collection", q.collection))
	}

	results := make([]Result, 0, len(resp.Result))
	for _, p := range resp.Result {
		results = append(results, Result{ID: pointID(p.ID), Score: p.Score, Payload: p.Payload})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	return results, nil
}

func (q *QdrantIndex) resolveVectorName(ctx context.Context) (string, error) {
	q.mu.Lock()
	resolved, name := q.resolved, q.vectorName
	q.mu.Unlock()

	if resolved {
		return name, nil
	}

	if err := q.EnsureCollection(ctx); err != nil {
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.vectorName, nil
}

// detectVectorName returns "" for an unnamed vector config, or the single
// vector name for a named config
func (q *QdrantIndex) detectVectorName(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var params qdrantVectorParams
	if err := json.Unmarshal(raw, &params); err == nil && params.Size > 0 {
		if params.Size != q.dimension {
			return "", goerr.New("collection vector size does not match embedding dimension",
				goerr.V("collection", q.collection),
				goerr.V("size", params.Size),
				goerr.V("dimension", q.dimension),
			)
		}
		return "", nil
	}

	var named map[string]qdrantVectorParams
	if err := json.Unmarshal(raw, &named); err != nil {
		return "", goerr.Wrap(err, "unexpected vectors config", goerr.V("collection", q.collection))
	}

	names := make([]string, 0, len(named))
	for n := range named {
		names = append(names, n)
	}
	sort.Strings(names)

	if len(names) == 0 {
		return "", nil
	}
	return names[0], nil
}

// collectionInfo returns nil when the collection does not exist
func (q *QdrantIndex) collectionInfo(ctx context.Context) (*qdrantCollectionInfo, error) {
	var resp qdrantEnvelope[qdrantCollectionInfo]
	if err := q.do(ctx, http.MethodGet, q.collectionPath(""), nil, &resp); err != nil {
		var herr *httpError
		if errors.As(err, &herr) && herr.status == http.StatusNotFound {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get collection", goerr.V("collection", q.collection))
	}
	return &resp.Result, nil
}

func (q *QdrantIndex) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(q.collection) + suffix
}

func (q *QdrantIndex) do(ctx context.Context, method, path string, body any, out any) error {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return goerr.Wrap(err, "failed to encode qdrant request")
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, buf)
	if err != nil {
		return goerr.Wrap(err, "failed to build qdrant request")
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if resp.StatusCode >= 400 {
		return &httpError{status: resp.StatusCode, body: strings.TrimSpace(string(payload))}
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return goerr.Wrap(err, "failed to decode qdrant response")
		}
	}
	return nil
}

// pointID renders numeric or UUID point ids as a string
func pointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
