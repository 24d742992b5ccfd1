package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dkomarov/curio/internal/common"
	"github.com/dkomarov/curio/internal/models"
)

// HTTPClient implements Client over the mirror's JSON document API:
//
//	PUT    /v1/{kind}/{id}       upsert, echoes server_millis
//	GET    /v1/{kind}/{id}       fetch
//	DELETE /v1/{kind}/{id}       remove
//	GET    /v1/changes?since=    change feed
//	GET    /v1/ping              reachability probe
type HTTPClient struct {
	baseURL string
	http    *http.Client
	tokens  *tokenCache
}

// NewHTTPClient returns a mirror client for baseURL. A nil tokenSource
// sends unauthenticated requests (local development mirrors).
func NewHTTPClient(baseURL string, tokenSource TokenSource) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	if tokenSource != nil {
		c.tokens = newTokenCache(tokenSource)
	}
	return c
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.get(ctx)
		if err != nil {
			return fmt.Errorf("%w: token: %v", common.ErrSyncUnreachable, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrSyncUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return common.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: unexpected status %d", common.ErrSyncUnreachable, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", common.ErrSyncUnreachable, err)
	}
	return nil
}

func docPath(kind models.Kind, id string) string {
	return fmt.Sprintf("/v1/%s/%s", url.PathEscape(string(kind)), url.PathEscape(id))
}

// Put upserts a document and returns the server-assigned write time.
func (c *HTTPClient) Put(ctx context.Context, doc Document) (int64, error) {
	var echoed Document
	if err := c.do(ctx, http.MethodPut, docPath(doc.Kind, doc.ID), doc, &echoed); err != nil {
		return 0, err
	}
	return echoed.ServerMillis, nil
}

// Get fetches a single document.
func (c *HTTPClient) Get(ctx context.Context, kind models.Kind, id string) (*Document, error) {
	var doc Document
	if err := c.do(ctx, http.MethodGet, docPath(kind, id), nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Delete removes a document. An already-absent document is not an error.
func (c *HTTPClient) Delete(ctx context.Context, kind models.Kind, id string) error {
	err := c.do(ctx, http.MethodDelete, docPath(kind, id), nil, nil)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	return err
}

type changesResponse struct {
	Documents []Document `json:"documents"`
	Next      string     `json:"next"`
}

// Changes returns documents written after the cursor position.
func (c *HTTPClient) Changes(ctx context.Context, since string) ([]Document, string, error) {
	path := "/v1/changes"
	if since != "" {
		path += "?since=" + url.QueryEscape(since)
	}

	var resp changesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, "", err
	}
	return resp.Documents, resp.Next, nil
}

// Ping probes mirror reachability.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/ping", nil, nil)
}
