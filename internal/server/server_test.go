package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-arlaunch"
	"github.com/goliatone/go-arlaunch/pkg/activity"
	"github.com/goliatone/go-arlaunch/pkg/cms"
	"github.com/goliatone/go-arlaunch/pkg/composer"
	"github.com/goliatone/go-arlaunch/pkg/configurator"
)

const (
	uaIOS     = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.4 Mobile/15E148 Safari/604.1"
	uaAndroid = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Mobile Safari/537.36"
	uaDesktop = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36"
)

func store() *cms.MemoryStore {
	return cms.NewMemoryStore(
		&cms.Record{
			Type:       cms.TypeProduct,
			ID:         "P1",
			Attributes: map[string]any{"title": "Chair", "product_variation_id": "V1"},
			Relationships: map[string][]cms.Ref{
				"product_variation": {{Type: cms.TypeProductVariation, ID: "V1"}},
			},
		},
		&cms.Record{
			Type:          cms.TypeProductVariation,
			ID:            "V1",
			Attributes:    map[string]any{"title": "Oak", "product_id": "P1", "file_model_id": "M1"},
			Relationships: map[string][]cms.Ref{"file_model": {{Type: cms.TypeFileModel, ID: "M1"}}},
		},
		&cms.Record{
			Type:       cms.TypeFileModel,
			ID:         "M1",
			Attributes: map[string]any{"path": "models/p1", "original_filename": "model.glb", "usdz_filename": "model.usdz"},
		},
		&cms.Record{
			Type:       cms.TypeFileModel,
			ID:         "M-usdz",
			Attributes: map[string]any{"path": "models/lamp", "original_filename": "lamp.usdz"},
		},
		&cms.Record{
			Type:          cms.TypeScene,
			ID:            "room",
			Attributes:    map[string]any{"title": "Room", "anchor_alignment": "horizontal"},
			Relationships: map[string][]cms.Ref{"scene_product": {{Type: cms.TypeSceneProduct, ID: "SP1"}}},
		},
		&cms.Record{
			Type:          cms.TypeSceneProduct,
			ID:            "SP1",
			Attributes:    map[string]any{"scene_id": "room", "product_id": "P1"},
			Relationships: map[string][]cms.Ref{"product": {{Type: cms.TypeProduct, ID: "P1"}}},
		},
	)
}

type stubComposer struct {
	fail bool
}

func (c stubComposer) Compose(_ context.Context, sceneID string, output composer.Output, _ composer.SceneGraph) (string, error) {
	if c.fail {
		return "", &composer.Error{Op: "compose", SceneID: sceneID, Status: http.StatusBadGateway}
	}
	return fmt.Sprintf("https://compose.test/%s/composed.%s", sceneID, output), nil
}

func (c stubComposer) ComposeByReference(_ context.Context, sceneID string, output composer.Output, graphID string) (string, error) {
	if c.fail {
		return "", &composer.Error{Op: "compose", SceneID: sceneID, Status: http.StatusBadGateway}
	}
	return fmt.Sprintf("https://compose.test/%s/%s.%s", sceneID, graphID, output), nil
}

func newTestServer(t *testing.T, comp arlaunch.Composer, hooks ...activity.ActivityHook) *httptest.Server {
	t.Helper()
	return newServerWith(t,
		arlaunch.WithFallbackURL("https://shop.test/chair"),
		arlaunch.WithComposer(comp),
		arlaunch.WithActivityHooks(hooks...),
	)
}

func newServerWith(t *testing.T, opts ...arlaunch.Option) *httptest.Server {
	t.Helper()
	base := []arlaunch.Option{
		arlaunch.WithCDN("https://cdn.test/"),
		arlaunch.WithResolver(store()),
	}
	srv := httptest.NewServer(New(arlaunch.NewFactory(append(base, opts...)...)).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path, ua string) *http.Response {
	t.Helper()
	return getWithHeaders(t, srv, path, http.Header{"User-Agent": {ua}})
}

func getWithHeaders(t *testing.T, srv *httptest.Server, path string, header http.Header) *http.Response {
	t.Helper()
	client := srv.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCapabilities(t *testing.T) {
	srv := newTestServer(t, stubComposer{})

	resp := get(t, srv, "/capabilities", uaAndroid)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "android", got["platform"])
	assert.Equal(t, true, got["scene_viewer"])
	assert.Equal(t, true, got["can_augment"])
}

func TestIntentFallbackFollowsOriginatingPage(t *testing.T) {
	srv := newServerWith(t)

	resp := getWithHeaders(t, srv, "/launch/product/P1", http.Header{
		"User-Agent": {uaAndroid},
		"Referer":    {"https://shop.test/chair?color=oak"},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"),
		"S.browser_fallback_url="+url.QueryEscape("https://shop.test/chair?color=oak#no-ar-fallback")+";")

	resp = get(t, srv, "/launch/product/P1", uaAndroid)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"),
		"S.browser_fallback_url="+url.QueryEscape(srv.URL+"/launch/product/P1#no-ar-fallback")+";")
}

func TestConfiguredFallbackWinsOverReferer(t *testing.T) {
	srv := newTestServer(t, stubComposer{})

	resp := getWithHeaders(t, srv, "/launch/product/P1", http.Header{
		"User-Agent": {uaAndroid},
		"Referer":    {"https://elsewhere.test/"},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	location := resp.Header.Get("Location")
	assert.Contains(t, location, url.QueryEscape("https://shop.test/chair#no-ar-fallback"))
	assert.NotContains(t, location, "elsewhere.test")
}

func TestLaunchProductAndroidRedirectsToIntent(t *testing.T) {
	capture := &activity.CaptureHook{}
	srv := newTestServer(t, stubComposer{}, capture)

	resp := get(t, srv, "/launch/product/P1?title=Chair", uaAndroid)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location := resp.Header.Get("Location")
	assert.True(t, strings.HasPrefix(location, "intent://arvr.google.com/scene-viewer/1.0?file=https://cdn.test/models/p1/model.glb"))
	assert.Contains(t, location, "mode=ar_preferred")
	assert.Contains(t, location, "title=%3Cb%3EChair%3C%2Fb%3E")
	assert.Len(t, capture.Events, 2)
}

func TestLaunchModelIOSRendersAnchorPage(t *testing.T) {
	srv := newTestServer(t, stubComposer{})

	resp := get(t, srv, "/launch/model/M-usdz?button=Buy", uaIOS)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))

	page := readAll(t, resp)
	assert.Contains(t, page, `href="https://cdn.test/models/lamp/lamp.usdz#callToAction=Buy"`)
	assert.Contains(t, page, `rel="ar"`)
	assert.Contains(t, page, `<img src="data:image/gif;base64,`)
}

func TestLaunchSceneFromState(t *testing.T) {
	state := configurator.New()
	state.Add("SP1", "V1", nil)
	encoded, err := state.Encode()
	require.NoError(t, err)

	srv := newTestServer(t, stubComposer{})
	resp := get(t, srv, "/launch/scene/room?state="+url.QueryEscape(encoded), uaAndroid)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "file=https://compose.test/room/composed.glb")
}

func TestLaunchStateRoute(t *testing.T) {
	state := configurator.New()
	state.Add("SP1", "V1", nil)
	encoded, err := state.Encode()
	require.NoError(t, err)

	srv := newTestServer(t, stubComposer{})
	resp := get(t, srv, "/launch/state?state="+url.QueryEscape(encoded), uaAndroid)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "file=https://cdn.test/models/p1/model.glb")
}

func TestLaunchGraph(t *testing.T) {
	srv := newTestServer(t, stubComposer{})
	resp := get(t, srv, "/launch/graph/room/g1", uaIOS)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readAll(t, resp), "https://compose.test/room/g1.usdz")
}

func TestLaunchErrorStatus(t *testing.T) {
	tests := []struct {
		name     string
		comp     arlaunch.Composer
		path     string
		ua       string
		wantCode int
	}{
		{"capability unavailable", stubComposer{}, "/launch/product/P1", uaDesktop, http.StatusNotImplemented},
		{"missing target", stubComposer{}, "/launch/product/nope", uaAndroid, http.StatusNotFound},
		{"unsupported format", stubComposer{}, "/launch/model/M-usdz", uaAndroid, http.StatusUnsupportedMediaType},
		{"composition failure", stubComposer{fail: true}, "/launch/graph/room/g1", uaAndroid, http.StatusBadGateway},
		{"bad anchor", stubComposer{}, "/launch/product/P1?anchor=ceiling", uaAndroid, http.StatusBadRequest},
		{"missing raw url", stubComposer{}, "/launch/raw", uaAndroid, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.comp)
			resp := get(t, srv, tt.path, tt.ua)
			require.Equal(t, tt.wantCode, resp.StatusCode)

			var got map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
			assert.NotEmpty(t, got["error"])
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusOK, StatusFor(nil))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(arlaunch.ErrNotInitialized))
	assert.Equal(t, http.StatusNotFound, StatusFor(fmt.Errorf("wrapped: %w", arlaunch.ErrMissingTarget)))
}
