// Package recalls talks to the public recalls and safety alerts API.
package recalls

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Client defaults.
const (
	DefaultBaseURL     = "https://healthycanadians.gc.ca/recall-alert-rappel-avis/api"
	DefaultLanguage    = "en"
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 4
	IDField            = "recallId"
)

// Client fetches recall listings and details.
type Client struct {
	BaseURL     string
	Language    string
	Concurrency int
	HTTP        *http.Client
	Log         zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option { return func(c *Client) { c.BaseURL = strings.TrimRight(u, "/") } }

// WithLanguage selects "en" or "fr" content.
func WithLanguage(lang string) Option { return func(c *Client) { c.Language = lang } }

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.HTTP.Timeout = d } }

// WithConcurrency bounds parallel detail requests.
func WithConcurrency(n int) Option { return func(c *Client) { c.Concurrency = n } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(c *Client) { c.Log = l } }

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.HTTP = h } }

// New returns a Client with defaults applied before opts.
func New(opts ...Option) *Client {
	c := &Client{
		BaseURL:     DefaultBaseURL,
		Language:    DefaultLanguage,
		Concurrency: DefaultConcurrency,
		HTTP:        &http.Client{Timeout: DefaultTimeout},
		Log:         zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	return c
}

type recentResponse struct {
	Results map[string][]map[string]any `json:"results"`
}

// Recent returns the latest listing entries for category.
func (c *Client) Recent(ctx context.Context, category Category) ([]map[string]any, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("invalid category %d", int(category))
	}
	var resp recentResponse
	if err := c.get(ctx, c.BaseURL+"/recent/"+url.PathEscape(c.Language), &resp); err != nil {
		return nil, fmt.Errorf("fetch %s listing: %w", category, err)
	}
	list, ok := resp.Results[category.Key()]
	if !ok {
		return nil, fmt.Errorf("fetch %s listing: response has no %q results", category, category.Key())
	}
	return list, nil
}

// Detail returns the full record of one recall. The record always carries
// IDField, set from id when the API leaves it out.
func (c *Client) Detail(ctx context.Context, id string) (map[string]any, error) {
	if id == "" {
		return nil, fmt.Errorf("empty recall id")
	}
	var rec map[string]any
	u := c.BaseURL + "/" + url.PathEscape(id) + "/" + url.PathEscape(c.Language)
	if err := c.get(ctx, u, &rec); err != nil {
		return nil, fmt.Errorf("fetch recall %s: %w", id, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("fetch recall %s: empty body", id)
	}
	if s, _ := rec[IDField].(string); s == "" {
		rec[IDField] = id
	}
	return rec, nil
}

// Details fetches the record behind every listing entry, keeping the listing
// order. Entries without an id or whose request fails are logged and left
// out. Only cancellation of ctx is returned as an error.
func (c *Client) Details(ctx context.Context, listing []map[string]any) ([]map[string]any, error) {
	out := make([]map[string]any, len(listing))
	var (
		mu     sync.Mutex
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Concurrency)
	for i, entry := range listing {
		id := entryID(entry)
		if id == "" {
			c.Log.Warn().Int("index", i).Msg("listing entry without recall id skipped")
			continue
		}
		g.Go(func() error {
			rec, err := c.Detail(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.Log.Error().Err(err).Str("recall_id", id).Msg("recall detail skipped")
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recs := make([]map[string]any, 0, len(out))
	for _, r := range out {
		if r != nil {
			recs = append(recs, r)
		}
	}
	c.Log.Debug().Int("fetched", len(recs)).Int("failed", failed).Msg("recall details fetched")
	return recs, nil
}

func entryID(entry map[string]any) string {
	switch v := entry[IDField].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func (c *Client) get(ctx context.Context, u string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	c.Log.Trace().Str("url", u).Msg("GET")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s: %s", resp.Status, truncate(body, 200))
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(into); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
