// Package composer talks to the remote composition service that turns a scene
// graph into a downloadable AR artifact.
//
// A composition is a single request. There is no retry and no internal
// timeout; callers bound latency through the context they pass in.
package composer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrCompositionFailure matches every error returned by Client.
var ErrCompositionFailure = errors.New("composer: composition failure")

// Output identifies the artifact kind requested from the service.
type Output string

const (
	OutputGLB  Output = "glb"
	OutputUSDZ Output = "usdz"
	OutputVTO  Output = "vto"
)

// Route returns the composition route serving o: "viewer" for glb, "reality"
// for usdz and vto.
func (o Output) Route() (string, error) {
	switch o {
	case OutputGLB:
		return "viewer", nil
	case OutputUSDZ, OutputVTO:
		return "reality", nil
	default:
		return "", fmt.Errorf("composer: unknown output %q", string(o))
	}
}

// Node is one product selection inside a scene graph.
type Node struct {
	SceneProductID     string `json:"scene_product_id"`
	ProductVariationID string `json:"product_variation_id"`
}

// SceneGraph is the payload composed by Compose.
type SceneGraph struct {
	SceneID string `json:"scene_id"`
	Nodes   []Node `json:"nodes"`
}

// Error describes a failed composition. It matches ErrCompositionFailure and
// unwraps to the transport or decoding error when there is one.
type Error struct {
	Op      string
	SceneID string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("composer: %s scene=%q", e.Op, e.SceneID)
	if e.Status != 0 {
		msg += fmt.Sprintf(" status=%d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is ErrCompositionFailure.
func (e *Error) Is(target error) bool {
	return target == ErrCompositionFailure
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithHeader adds a header sent with every request, e.g. an API token.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if c.headers == nil {
			c.headers = http.Header{}
		}
		c.headers.Set(key, value)
	}
}

// Client is safe for concurrent use.
type Client struct {
	base    string
	http    *http.Client
	headers http.Header
}

// NewClient builds a Client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
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

type composeRequest struct {
	Data struct {
		Attributes struct {
			Output Output     `json:"output"`
			Graph  SceneGraph `json:"graph"`
		} `json:"attributes"`
	} `json:"data"`
}

type composeResponse struct {
	Data struct {
		Attributes struct {
			URL string `json:"url"`
		} `json:"attributes"`
	} `json:"data"`
}

// Compose posts graph and returns the artifact URL.
func (c *Client) Compose(ctx context.Context, sceneID string, output Output, graph SceneGraph) (string, error) {
	const op = "compose"
	route, err := output.Route()
	if err != nil {
		return "", &Error{Op: op, SceneID: sceneID, Err: err}
	}
	if graph.SceneID == "" {
		graph.SceneID = sceneID
	}

	var body composeRequest
	body.Data.Attributes.Output = output
	body.Data.Attributes.Graph = graph
	payload, err := json.Marshal(body)
	if err != nil {
		return "", &Error{Op: op, SceneID: sceneID, Err: err}
	}

	endpoint := fmt.Sprintf("%s/v3/scene/%s/%s", c.base, url.PathEscape(sceneID), route)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Op: op, SceneID: sceneID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, op, sceneID)
}

// ComposeByReference asks the service to compose a stored scene graph.
func (c *Client) ComposeByReference(ctx context.Context, sceneID string, output Output, graphID string) (string, error) {
	const op = "compose by reference"
	route, err := output.Route()
	if err != nil {
		return "", &Error{Op: op, SceneID: sceneID, Err: err}
	}
	if graphID == "" {
		return "", &Error{Op: op, SceneID: sceneID, Err: errors.New("graph id is required")}
	}

	endpoint := fmt.Sprintf("%s/v3/scene/%s/%s/%s?output=%s",
		c.base, url.PathEscape(sceneID), route, url.PathEscape(graphID), url.QueryEscape(string(output)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", &Error{Op: op, SceneID: sceneID, Err: err}
	}
	return c.do(req, op, sceneID)
}

func (c *Client) do(req *http.Request, op, sceneID string) (string, error) {
	req.Header.Set("Accept", "application/json")
	for key, values := range c.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &Error{Op: op, SceneID: sceneID, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Op: op, SceneID: sceneID, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{
			Op:      op,
			SceneID: sceneID,
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	var decoded composeResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", &Error{Op: op, SceneID: sceneID, Status: resp.StatusCode, Err: fmt.Errorf("malformed response: %w", err)}
	}
	artifact := strings.TrimSpace(decoded.Data.Attributes.URL)
	if artifact == "" {
		return "", &Error{Op: op, SceneID: sceneID, Status: resp.StatusCode, Err: errors.New("malformed response: missing data.attributes.url")}
	}
	return artifact, nil
}
