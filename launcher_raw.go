package arlaunch

import (
	"context"
	"fmt"
	"strings"
)

// RawLauncher launches a model file by URL. The file type is guessed from the
// URL extension; WithRawAlternates adds the same model in other formats.
type RawLauncher struct {
	machine
}

// NewRawLauncher builds a launcher for rawURL.
func NewRawLauncher(rawURL string, opts ...Option) *RawLauncher {
	return newRawLauncher(nil, rawURL, opts)
}

func newRawLauncher(base *config, rawURL string, opts []Option) *RawLauncher {
	rawURL = strings.TrimSpace(rawURL)
	cfg := newConfig(base, opts)
	src := &rawSource{urls: append([]string{rawURL}, cfg.alternates...)}
	return &RawLauncher{machine: newMachine("raw", Target{Kind: TargetRaw, ID: rawURL}, cfg, src)}
}

// Init implements Launcher.
func (l *RawLauncher) Init(ctx context.Context) (Launcher, error) {
	if err := l.init(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

type rawSource struct {
	urls   []string
	byKind map[artifactKind]string
}

func (s *rawSource) prepare(context.Context, *config) error {
	if len(s.urls) == 0 || s.urls[0] == "" {
		return fmt.Errorf("%w: raw url is empty", ErrMissingTarget)
	}
	s.byKind = map[artifactKind]string{}
	for _, candidate := range s.urls {
		kind, ok := guessArtifact(candidate)
		if !ok {
			continue
		}
		if _, taken := s.byKind[kind]; !taken {
			s.byKind[kind] = candidate
		}
	}
	return nil
}

func (*rawSource) storedAnchor() Anchor { return "" }

// artifact serves VTO launches from the .reality file, the only raw format
// that carries face anchoring.
func (s *rawSource) artifact(_ context.Context, kind artifactKind) (string, error) {
	if kind == artifactVTO {
		kind = artifactReality
	}
	return s.byKind[kind], nil
}

func guessArtifact(raw string) (artifactKind, bool) {
	switch extensionOf(raw) {
	case ".glb", ".gltf":
		return artifactGLB, true
	case ".usdz":
		return artifactUSDZ, true
	case ".reality":
		return artifactReality, true
	default:
		return "", false
	}
}
