// Package remote implements records.Client against a hosted backend over
// HTTP and JSON.
//
// Every operation is a POST to
//
//	{baseURL}/v1/projects/{projectID}/tables/{table}/{op}
//
// with the operation's arguments as a JSON body and the project's public key
// in the X-Apper-Public-Key header. The backend answers with the same
// response envelopes the records package defines.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sakif/codecanvas/internal/records"
)

// compile-time check that *Client implements records.Client
var _ records.Client = (*Client)(nil)

// HeaderPublicKey authenticates the project on every request.
const HeaderPublicKey = "X-Apper-Public-Key"

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 8 << 20

// Config holds the hosted backend coordinates.
type Config struct {
	BaseURL   string
	ProjectID string
	PublicKey string
	Timeout   time.Duration
}

// Client talks to the hosted backend.
type Client struct {
	cfg  Config
	base *url.URL
	http *http.Client
}

// New creates a Client. Outgoing requests are traced through otelhttp, which
// is a no-op unless a tracer provider has been installed.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote: base URL is required")
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("remote: project id is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: parsing base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &Client{
		cfg:  cfg,
		base: base,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

type getRequest struct {
	ID    int64         `json:"id"`
	Query records.Query `json:"query"`
}

type mutateRequest struct {
	Records []records.Record `json:"records"`
}

type deleteRequest struct {
	RecordIDs []int64 `json:"RecordIds"`
}

type incrementRequest struct {
	ID    int64  `json:"id"`
	Field string `json:"field"`
	Delta int64  `json:"delta"`
}

// FetchRecords runs a descriptor query.
func (c *Client) FetchRecords(ctx context.Context, table string, q records.Query) (*records.FetchResponse, error) {
	var resp records.FetchResponse
	if err := c.do(ctx, table, "fetch", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetRecordByID loads one record.
func (c *Client) GetRecordByID(ctx context.Context, table string, id int64, q records.Query) (*records.GetResponse, error) {
	var resp records.GetResponse
	if err := c.do(ctx, table, "get", getRequest{ID: id, Query: q}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateRecord inserts records.
func (c *Client) CreateRecord(ctx context.Context, table string, recs []records.Record) (*records.MutateResponse, error) {
	var resp records.MutateResponse
	if err := c.do(ctx, table, "create", mutateRequest{Records: recs}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateRecord partially updates records.
func (c *Client) UpdateRecord(ctx context.Context, table string, recs []records.Record) (*records.MutateResponse, error) {
	var resp records.MutateResponse
	if err := c.do(ctx, table, "update", mutateRequest{Records: recs}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteRecord deletes records by id.
func (c *Client) DeleteRecord(ctx context.Context, table string, ids []int64) (*records.MutateResponse, error) {
	var resp records.MutateResponse
	if err := c.do(ctx, table, "delete", deleteRequest{RecordIDs: ids}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IncrementField atomically adds delta to a numeric field.
func (c *Client) IncrementField(ctx context.Context, table string, id int64, field string, delta int64) (*records.GetResponse, error) {
	var resp records.GetResponse
	req := incrementRequest{ID: id, Field: field, Delta: delta}
	if err := c.do(ctx, table, "increment", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// envelope is the part every response shares. It is decoded separately so
// a non-2xx answer can still surface the backend's message.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// do sends one operation and decodes the response into out.
//
// A non-2xx status is not a Go error: the backend understood the request
// and refused it, so out gets Success=false and the backend's message (or
// the status text). Only transport and decoding problems return an error.
func (c *Client) do(ctx context.Context, table, op string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("remote: encoding %s request: %w", op, err)
	}

	endpoint := c.base.JoinPath("v1", "projects", c.cfg.ProjectID, "tables", table, op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("remote: building %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderPublicKey, c.cfg.PublicKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", op, table, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("remote: reading %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env envelope
		_ = json.Unmarshal(raw, &env)
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("%s %s: %s", op, table, http.StatusText(resp.StatusCode))
		}
		refused, _ := json.Marshal(envelope{Success: false, Message: msg})
		return json.Unmarshal(refused, out)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("remote: decoding %s response: %w", op, err)
	}
	return nil
}
