package cms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func fixtureStore() *MemoryStore {
	return NewMemoryStore(
		&Record{
			Type:       TypeProduct,
			ID:         "chair",
			Attributes: map[string]any{"title": "Chair", "scene_id": "room", "product_variation_id": "oak"},
			Relationships: map[string][]Ref{
				"product_variation": {{Type: TypeProductVariation, ID: "oak"}, {Type: TypeProductVariation, ID: "walnut"}},
				"scene":             {{Type: TypeScene, ID: "room"}},
			},
		},
		&Record{
			Type:       TypeProductVariation,
			ID:         "oak",
			Attributes: map[string]any{"title": "Oak", "product_id": "chair", "file_model_id": "m-oak"},
			Relationships: map[string][]Ref{
				"file_model": {{Type: TypeFileModel, ID: "m-oak"}},
			},
		},
		&Record{
			Type:       TypeProductVariation,
			ID:         "walnut",
			Attributes: map[string]any{"title": "Walnut", "product_id": "chair", "file_model_id": "m-missing"},
			Relationships: map[string][]Ref{
				"file_model": {{Type: TypeFileModel, ID: "m-missing"}},
			},
		},
		&Record{
			Type: TypeFileModel,
			ID:   "m-oak",
			Attributes: map[string]any{
				"path":              "models/oak/",
				"original_filename": "oak.glb",
				"usdz_filename":     "oak.usdz",
			},
		},
		&Record{
			Type:       TypeScene,
			ID:         "room",
			Attributes: map[string]any{"title": "Room", "anchor_alignment": " Vertical "},
		},
	)
}

func TestMemoryStoreExpandsIncludePaths(t *testing.T) {
	store := fixtureStore()
	record, err := store.Resolve(context.Background(), TypeProduct, "chair", "product_variation.file_model", "scene")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	var keys []string
	for _, included := range record.Included {
		keys = append(keys, included.Key())
	}
	want := []string{"product_variation/oak", "file_model/m-oak", "product_variation/walnut", "scene/room"}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Fatalf("included mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	store := fixtureStore()
	_, err := store.Resolve(context.Background(), TypeProduct, "sofa")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := fixtureStore()
	first, err := store.Resolve(context.Background(), TypeScene, "room")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	first.Attributes["title"] = "changed"

	second, err := store.Resolve(context.Background(), TypeScene, "room")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if second.String("title") != "Room" {
		t.Fatalf("expected stored record untouched, got %q", second.String("title"))
	}
}

func TestRecordFind(t *testing.T) {
	store := fixtureStore()
	record, err := store.Resolve(context.Background(), TypeProduct, "chair", "product_variation.file_model", "scene")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	variation, ok := record.Find(TypeProductVariation, "walnut")
	if !ok || variation.ID != "walnut" {
		t.Fatalf("expected walnut variation, got %v", variation)
	}
	first, ok := record.Find(TypeProductVariation)
	if !ok || first.ID != "oak" {
		t.Fatalf("expected first related variation oak, got %v", first)
	}
	if _, ok := record.Find(TypeFileModel, "m-missing"); ok {
		t.Fatalf("dangling reference must not resolve")
	}
	self, ok := record.Find(TypeProduct, "chair")
	if !ok || self != record {
		t.Fatalf("expected Find to return the root record")
	}
	if got := len(record.FindAll(TypeProductVariation)); got != 2 {
		t.Fatalf("expected 2 variations, got %d", got)
	}

	var nilRecord *Record
	if _, ok := nilRecord.Find(TypeScene); ok {
		t.Fatalf("nil record must not find anything")
	}
}

func TestDecodeModels(t *testing.T) {
	store := fixtureStore()
	record, err := store.Resolve(context.Background(), TypeProduct, "chair", "product_variation.file_model", "scene")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	product, err := DecodeProduct(record)
	if err != nil {
		t.Fatalf("decode product: %v", err)
	}
	if diff := cmp.Diff(Product{ID: "chair", Title: "Chair", SceneID: "room", ProductVariationID: "oak"}, product); diff != "" {
		t.Fatalf("product mismatch (-want +got):\n%s", diff)
	}

	sceneRecord, _ := record.Find(TypeScene)
	scene, err := DecodeScene(sceneRecord)
	if err != nil {
		t.Fatalf("decode scene: %v", err)
	}
	if scene.AnchorAlignment != "vertical" || scene.ID != "room" {
		t.Fatalf("unexpected scene %+v", scene)
	}

	modelRecord, _ := record.Find(TypeFileModel, "m-oak")
	model, err := DecodeFileModel(modelRecord)
	if err != nil {
		t.Fatalf("decode model: %v", err)
	}
	if model.GLB() != "oak.glb" || model.USDZ() != "oak.usdz" || model.Reality() != "" {
		t.Fatalf("unexpected variants glb=%q usdz=%q reality=%q", model.GLB(), model.USDZ(), model.Reality())
	}
	if got := model.URL("https://cdn.test/", model.USDZ()); got != "https://cdn.test/models/oak/oak.usdz" {
		t.Fatalf("unexpected url %q", got)
	}

	if _, err := DecodeScene(modelRecord); err == nil {
		t.Fatalf("expected type mismatch error")
	}
}

const productDocument = `{
  "data": {
    "type": "product",
    "id": "chair",
    "attributes": {"title": "Chair", "product_variation_id": "oak"},
    "relationships": {
      "product_variation": {"data": [{"type": "product_variation", "id": "oak"}]},
      "scene": {"data": {"type": "scene", "id": "room"}},
      "brand": {"data": null}
    }
  },
  "included": [
    {"type": "product_variation", "id": "oak", "attributes": {"file_model_id": "m-oak"}},
    {"type": "scene", "id": "room", "attributes": {"anchor_alignment": "horizontal"}}
  ]
}`

func TestClientResolvesDocument(t *testing.T) {
	var gotPath, gotInclude, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotInclude = r.URL.Query().Get("include")
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(productDocument))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithHTTPClient(server.Client()), WithHeader("Authorization", "Bearer t"))
	record, err := client.Resolve(context.Background(), TypeProduct, "chair", "product_variation", "scene")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if gotPath != "/v3/product/chair" || gotInclude != "product_variation,scene" || gotAuth != "Bearer t" {
		t.Fatalf("unexpected request path=%s include=%s auth=%s", gotPath, gotInclude, gotAuth)
	}
	if diff := cmp.Diff([]Ref{{Type: TypeScene, ID: "room"}}, record.Related("scene")); diff != "" {
		t.Fatalf("to-one relationship mismatch (-want +got):\n%s", diff)
	}
	if record.Related("brand") != nil {
		t.Fatalf("null linkage must be dropped")
	}
	variation, ok := record.Find(TypeProductVariation)
	if !ok || variation.String("file_model_id") != "m-oak" {
		t.Fatalf("expected included variation, got %v", variation)
	}
}

func TestClientMapsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithHTTPClient(server.Client()))
	if _, err := client.Resolve(context.Background(), TypeScene, "gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClientRejectsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithHTTPClient(server.Client()))
	_, err := client.Resolve(context.Background(), TypeScene, "room")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a non not-found error, got %v", err)
	}
}

func TestClientSharesConcurrentRequests(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte(productDocument))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithHTTPClient(server.Client()))
	const callers = 4
	var wg sync.WaitGroup
	results := make([]*Record, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			record, err := client.Resolve(context.Background(), TypeProduct, "chair")
			if err != nil {
				t.Errorf("resolve: %v", err)
				return
			}
			results[i] = record
		}(i)
	}
	// give every caller a chance to join the in-flight request
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if hits.Load() < 1 || hits.Load() > callers {
		t.Fatalf("unexpected hit count %d", hits.Load())
	}
	if results[0] != nil && results[1] != nil && results[0] == results[1] {
		t.Fatalf("callers must receive distinct copies")
	}
}
