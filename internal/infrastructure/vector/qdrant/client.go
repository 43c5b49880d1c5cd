package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Whisker2257/casa/internal/core/domain"
	"github.com/Whisker2257/casa/internal/infrastructure/resilience"
)

// Client implements ports.VectorIndex over the qdrant HTTP API. The
// caller's structured record id ("pdf::<path>::<chunkID>", "<path>#<i>")
// travels in the payload as "ref"; the qdrant point id is the uuid5 of
// that ref, so re-upserting the same chunk overwrites instead of
// duplicating.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return NewWithExecutor(baseURL, collection, nil)
}

// NewWithExecutor routes every qdrant call through executor. A nil
// executor means plain single-attempt calls.
func NewWithExecutor(baseURL, collection string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

func pointID(ref string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(ref)).String()
}

func (c *Client) Upsert(ctx context.Context, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	if err := c.ensureCollection(ctx, len(records[0].Values)); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(records))
	for _, rec := range records {
		payload := map[string]any{
			"ref":  rec.ID,
			"path": rec.Metadata.Path,
		}
		if rec.Metadata.Section != "" {
			payload["section"] = rec.Metadata.Section
		}
		points = append(points, point{
			ID:      pointID(rec.ID),
			Vector:  rec.Values,
			Payload: payload,
		})
	}

	body, err := json.Marshal(map[string]any{"points": points})
	if err != nil {
		return fmt.Errorf("marshal upsert body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	if err := c.do(ctx, http.MethodPut, url, body, nil, "upsert"); err != nil {
		return domain.WrapError(domain.ErrIndexingFailed, "qdrant upsert", err)
	}
	return nil
}

func (c *Client) Query(
	ctx context.Context,
	vector []float32,
	topK int,
	filter domain.VectorFilter,
) ([]domain.VectorMatch, error) {
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if filter.Path != "" {
		reqBody["filter"] = pathFilter(filter.Path)
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	if err := c.do(ctx, http.MethodPost, url, body, &searchResp, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.VectorMatch, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.VectorMatch{
			ID:    getStringPayload(r.Payload, "ref"),
			Score: r.Score,
			Metadata: domain.VectorMetadata{
				Path:    getStringPayload(r.Payload, "path"),
				Section: getStringPayload(r.Payload, "section"),
			},
		})
	}
	return out, nil
}

// DeleteByPath removes every point whose payload path matches. Absence of
// matching points is not an error.
func (c *Client) DeleteByPath(ctx context.Context, path string) error {
	body, err := json.Marshal(map[string]any{"filter": pathFilter(path)})
	if err != nil {
		return fmt.Errorf("marshal delete body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, c.collection)
	return c.do(ctx, http.MethodPost, url, body, nil, "delete")
}

func pathFilter(path string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{
				"key":   "path",
				"match": map[string]any{"value": path},
			},
		},
	}
}

// ensureCollection lazily creates the collection once per process. The
// lock is held across the remote call so concurrent first upserts do not
// race the create.
func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	})
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}

	// 200/201 for create, 409 if already exists (depends on version/config).
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	if err := c.do(ctx, http.MethodPut, url, body, nil, "ensure collection"); err != nil {
		var statusErr *statusError
		if !errors.As(err, &statusErr) || statusErr.status != http.StatusConflict {
			return err
		}
	}
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, out any, operation string) error {
	call := func(ctx context.Context) error {
		return c.doOnce(ctx, method, url, body, out, operation)
	}
	if c.executor != nil {
		return c.executor.Execute(ctx, "qdrant."+operation, call, classifyQdrantError)
	}
	return call(ctx)
}

func (c *Client) doOnce(ctx context.Context, method, url string, body []byte, out any, operation string) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return newStatusError(operation, resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
	}
	return nil
}

type statusError struct {
	operation  string
	status     int
	statusText string
	message    string
}

func newStatusError(operation string, resp *http.Response) *statusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &statusError{
		operation:  operation,
		status:     resp.StatusCode,
		statusText: resp.Status,
		message:    strings.TrimSpace(string(body)),
	}
}

func (e *statusError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("qdrant %s status: %s: %s", e.operation, e.statusText, e.message)
	}
	return fmt.Sprintf("qdrant %s status: %s", e.operation, e.statusText)
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
