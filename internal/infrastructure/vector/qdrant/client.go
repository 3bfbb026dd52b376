package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/catalog-search/internal/core/domain"
	"github.com/kirillkom/catalog-search/internal/infrastructure/resilience"
)

// Client stores one point per catalog record. Point ids are record ids and
// the payload carries only record_id, so the relational store stays the
// source of truth.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

type StatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.Operation, e.Status, e.Body)
}

func (c *Client) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.VectorHit, error) {
	if len(queryVector) == 0 || limit <= 0 {
		return nil, nil
	}
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": false,
	}

	var searchResp struct {
		Result []struct {
			ID    json.RawMessage `json:"id"`
			Score float64         `json:"score"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	err := c.execute(ctx, "qdrant.search", func(callCtx context.Context) error {
		return c.doJSON(callCtx, http.MethodPost, path, reqBody, &searchResp, "search")
	})
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			// Nothing indexed yet.
			return nil, nil
		}
		return nil, err
	}

	out := make([]domain.VectorHit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		var id int64
		if err := json.Unmarshal(r.ID, &id); err != nil {
			continue
		}
		out = append(out, domain.VectorHit{RecordID: id, Score: r.Score})
	}
	return out, nil
}

func (c *Client) UpsertRecord(ctx context.Context, recordID int64, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("qdrant upsert: empty vector for record %d", recordID)
	}
	if err := c.ensureCollection(ctx, len(vector)); err != nil {
		return err
	}

	reqBody := map[string]any{
		"points": []map[string]any{{
			"id":      recordID,
			"vector":  vector,
			"payload": map[string]any{"record_id": recordID},
		}},
	}
	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.execute(ctx, "qdrant.upsert", func(callCtx context.Context) error {
		return c.doJSON(callCtx, http.MethodPut, path, reqBody, nil, "upsert")
	})
}

func (c *Client) DeleteRecord(ctx context.Context, recordID int64) error {
	reqBody := map[string]any{"points": []int64{recordID}}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	err := c.execute(ctx, "qdrant.delete", func(callCtx context.Context) error {
		return c.doJSON(callCtx, http.MethodPost, path, reqBody, nil, "delete")
	})
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Dot",
		},
	}

	path := fmt.Sprintf("/collections/%s", c.collection)
	err := c.doJSON(ctx, http.MethodPut, path, reqBody, nil, "ensure collection")
	var statusErr *StatusError
	// 409 when the collection already exists.
	if err != nil && !(errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict) {
		return err
	}

	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
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
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(msg)),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	var err error
	if c.executor == nil {
		err = fn(ctx)
	} else {
		err = c.executor.Execute(ctx, operation, fn, classifyQdrantError)
	}
	if err == nil {
		return nil
	}
	if classifyQdrantError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func classifyQdrantError(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		retryable := statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
		return resilience.ErrorClassification{Retryable: retryable, RecordFailure: retryable}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}
