package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/singleflight"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		if c.headers == nil {
			c.headers = http.Header{}
		}
		c.headers.Set(key, value)
	}
}

// Client resolves records from a JSON:API endpoint rooted at
// {base}/v3/{type}/{id}. Concurrent identical requests share one round trip.
type Client struct {
	base    string
	http    *http.Client
	headers http.Header
	flight  singleflight.Group
}

// NewClient builds a Client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: http.DefaultClient,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type wireResource struct {
	Type          Type                        `json:"type"`
	ID            string                      `json:"id"`
	Attributes    map[string]any              `json:"attributes"`
	Relationships map[string]wireRelationship `json:"relationships"`
}

type wireRelationship struct {
	Data json.RawMessage `json:"data"`
}

type wireDocument struct {
	Data     *wireResource  `json:"data"`
	Included []wireResource `json:"included"`
}

// Resolve implements Resolver.
func (c *Client) Resolve(ctx context.Context, typ Type, id string, includes ...string) (*Record, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("cms: resolve %s: id is required", typ)
	}
	endpoint := fmt.Sprintf("%s/v3/%s/%s", c.base, url.PathEscape(string(typ)), url.PathEscape(id))
	if len(includes) > 0 {
		endpoint += "?include=" + url.QueryEscape(strings.Join(includes, ","))
	}

	value, err, _ := c.flight.Do(endpoint, func() (any, error) {
		return c.fetch(ctx, typ, id, endpoint)
	})
	if err != nil {
		return nil, err
	}
	// shared results are cloned so callers never alias each other
	return cloneResolved(value.(*Record)), nil
}

func (c *Client) fetch(ctx context.Context, typ Type, id, endpoint string) (*Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("cms: resolve %s: %w", key(typ, id), err)
	}
	req.Header.Set("Accept", "application/vnd.api+json")
	for name, values := range c.headers {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cms: resolve %s: %w", key(typ, id), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cms: resolve %s: %w", key(typ, id), err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key(typ, id))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("cms: resolve %s: unexpected status %s", key(typ, id), resp.Status)
	}

	var doc wireDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("cms: resolve %s: malformed document: %w", key(typ, id), err)
	}
	if doc.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key(typ, id))
	}

	record, err := doc.Data.record()
	if err != nil {
		return nil, fmt.Errorf("cms: resolve %s: %w", key(typ, id), err)
	}
	for _, included := range doc.Included {
		item, err := included.record()
		if err != nil {
			return nil, fmt.Errorf("cms: resolve %s: %w", key(typ, id), err)
		}
		record.Included = append(record.Included, item)
	}
	return record, nil
}

func (w wireResource) record() (*Record, error) {
	out := &Record{
		Type:       w.Type,
		ID:         w.ID,
		Attributes: w.Attributes,
	}
	if len(w.Relationships) == 0 {
		return out, nil
	}
	out.Relationships = make(map[string][]Ref, len(w.Relationships))
	for name, rel := range w.Relationships {
		refs, err := rel.refs()
		if err != nil {
			return nil, fmt.Errorf("relationship %q: %w", name, err)
		}
		if len(refs) > 0 {
			out.Relationships[name] = refs
		}
	}
	return out, nil
}

// refs accepts the to-one and to-many linkage shapes.
func (r wireRelationship) refs() ([]Ref, error) {
	data := bytes.TrimSpace(r.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] == '[' {
		var many []Ref
		if err := json.Unmarshal(data, &many); err != nil {
			return nil, err
		}
		return many, nil
	}
	var one Ref
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []Ref{one}, nil
}

func cloneResolved(r *Record) *Record {
	out := cloneRecord(r)
	if len(r.Included) > 0 {
		out.Included = make([]*Record, 0, len(r.Included))
		for _, included := range r.Included {
			out.Included = append(out.Included, cloneRecord(included))
		}
	}
	return out
}
