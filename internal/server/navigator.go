package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/goliatone/go-arlaunch"
)

// transparent 1x1 gif; Quick Look only honours rel="ar" anchors wrapping an image
const posterPixel = template.URL("data:image/gif;base64,R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7")

var launchPage = template.Must(template.New("launch").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
</head>
<body>
<a id="ar-launch" href="{{.Href}}"{{if .Rel}} rel="{{.Rel}}"{{end}}><img src="{{.Poster}}" alt="{{.Title}}" width="1" height="1"></a>
<script>document.getElementById("ar-launch").click();</script>
</body>
</html>
`))

type launchPageData struct {
	Title  string
	Href   string
	Rel    string
	Poster template.URL
}

// responseNavigator performs an invocation by answering the request that
// triggered the launch: intents are redirected, anchors are rendered on a page
// that follows them.
type responseNavigator struct {
	w     http.ResponseWriter
	r     *http.Request
	wrote bool
}

func newResponseNavigator(w http.ResponseWriter, r *http.Request) *responseNavigator {
	return &responseNavigator{w: w, r: r}
}

func (n *responseNavigator) Navigate(_ context.Context, invocation arlaunch.Invocation) error {
	if invocation.Href == "" {
		return fmt.Errorf("server: invocation has no href")
	}
	n.wrote = true
	if strings.HasPrefix(invocation.Href, "intent://") {
		n.w.Header().Set("Location", invocation.Href)
		n.w.WriteHeader(http.StatusFound)
		return nil
	}

	n.w.Header().Set("Content-Type", "text/html; charset=utf-8")
	n.w.Header().Set("Cache-Control", "no-store")
	return launchPage.Execute(n.w, launchPageData{
		Title:  string(invocation.Kind),
		Href:   invocation.Href,
		Rel:    invocation.Rel,
		Poster: posterPixel,
	})
}

var _ arlaunch.Navigator = (*responseNavigator)(nil)
