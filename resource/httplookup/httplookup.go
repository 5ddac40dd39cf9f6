// Package httplookup provides the reference adapter for networked lookup
// services speaking JSON over HTTP. The request/response shape is the
// engine's own; provider-specific protocols get their own adapter kinds
// behind the same contract.
package httplookup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360/idresolve/errors"
	"github.com/c360/idresolve/resource"
	"github.com/c360/idresolve/types"
)

// Kind is the registry kind for this adapter.
const Kind = "httplookup"

// Register registers the httplookup factory with the registry.
func Register(registry *resource.Registry) error {
	return registry.RegisterKind(Kind, New)
}

// Config holds the adapter's endpoint configuration.
type Config struct {
	// Endpoint is the lookup URL (required).
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	// Headers are added to every request (auth tokens, accept types).
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// TimeoutSeconds bounds a single request (default 30).
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	// DefaultConfidence applies when the provider omits one (default 0.8:
	// a networked service without stated confidence is trusted less than
	// a curated table).
	DefaultConfidence float64 `json:"default_confidence,omitempty" yaml:"default_confidence,omitempty"`
}

// lookupRequest is the engine's wire request.
type lookupRequest struct {
	IDs    []string `json:"ids"`
	Source string   `json:"source"`
	Target string   `json:"target"`
}

// lookupResponse is the engine's wire response.
type lookupResponse struct {
	Results map[string]struct {
		Targets    []string          `json:"targets"`
		Confidence *float64          `json:"confidence,omitempty"`
		Metadata   map[string]string `json:"metadata,omitempty"`
	} `json:"results"`
}

// Client is the httplookup adapter.
type Client struct {
	desc   resource.Descriptor
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// New creates an httplookup adapter from raw configuration. No I/O is
// performed until the first Lookup.
func New(desc resource.Descriptor, rawConfig json.RawMessage, deps resource.Dependencies) (resource.Adapter, error) {
	var cfg Config
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, errors.WrapInvalid(err, "HTTPLookup", "New", "config unmarshal")
		}
	}
	if cfg.Endpoint == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "HTTPLookup", "New",
			fmt.Sprintf("resource %q: endpoint is required", desc.Name))
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 30
	}
	if cfg.DefaultConfidence == 0 {
		cfg.DefaultConfidence = 0.8
	}

	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		desc:   desc,
		cfg:    cfg,
		http:   httpClient,
		logger: logger.With("adapter", desc.Name),
	}, nil
}

// Name returns the configured instance name.
func (c *Client) Name() string { return c.desc.Name }

// Descriptor returns the adapter's static configuration.
func (c *Client) Descriptor() resource.Descriptor { return c.desc }

// Lookup posts the batch to the configured endpoint and decodes the
// per-identifier results. HTTP 429 and 5xx classify as transient; other
// 4xx as invalid input.
func (c *Client) Lookup(
	ctx context.Context, batch []types.Identifier, target types.Ontology,
) (map[string]resource.Result, error) {
	if err := c.desc.CheckBatch(batch); err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return map[string]resource.Result{}, nil
	}

	ids := make([]string, len(batch))
	for i, id := range batch {
		ids[i] = id.Value
	}
	payload, err := json.Marshal(lookupRequest{
		IDs:    ids,
		Source: string(batch[0].Ontology),
		Target: string(target),
	})
	if err != nil {
		return nil, errors.WrapInvalid(err, "HTTPLookup", "Lookup", "request marshal")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.WrapInvalid(err, "HTTPLookup", "Lookup", "request build")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.WrapTransient(err, "HTTPLookup", "Lookup", "http request")
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.classifyStatus(resp.StatusCode); err != nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, err
	}

	var decoded lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.WrapTransient(err, "HTTPLookup", "Lookup", "response decode")
	}

	out := make(map[string]resource.Result, len(decoded.Results))
	for id, r := range decoded.Results {
		if len(r.Targets) == 0 {
			continue // provider's explicit no-match
		}
		confidence := c.cfg.DefaultConfidence
		if r.Confidence != nil {
			confidence = *r.Confidence
		}
		out[id] = resource.Result{
			Targets:    r.Targets,
			Confidence: confidence,
			Metadata:   r.Metadata,
		}
	}

	c.logger.DebugContext(ctx, "lookup completed",
		"batch", len(batch), "resolved", len(out), "target", target)
	return out, nil
}

func (c *Client) classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return errors.WrapTransient(errors.ErrRateLimited, "HTTPLookup", "Lookup",
			fmt.Sprintf("resource %q", c.desc.Name))
	case status >= 500:
		return errors.WrapTransient(errors.ErrUnavailable, "HTTPLookup", "Lookup",
			fmt.Sprintf("resource %q returned %d", c.desc.Name, status))
	default:
		return errors.WrapInvalid(errors.ErrInvalidInput, "HTTPLookup", "Lookup",
			fmt.Sprintf("resource %q returned %d", c.desc.Name, status))
	}
}
