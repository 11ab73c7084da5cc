package cms

import (
	"fmt"
	"path"
	"strings"

	"github.com/goliatone/go-arlaunch/internal/hydrate"
)

// FileModel is a stored 3D model with its platform variants.
type FileModel struct {
	ID               string `json:"-"`
	Title            string `json:"title"`
	Path             string `json:"path"`
	OriginalFilename string `json:"original_filename"`
	GLBFilename      string `json:"glb_filename"`
	USDZFilename     string `json:"usdz_filename"`
	RealityFilename  string `json:"reality_filename"`
	AnchorAlignment  string `json:"anchor_alignment"`
}

// GLB returns the glb/gltf filename, preferring an explicit conversion over
// the original upload.
func (m FileModel) GLB() string {
	if m.GLBFilename != "" {
		return m.GLBFilename
	}
	switch strings.ToLower(path.Ext(m.OriginalFilename)) {
	case ".glb", ".gltf":
		return m.OriginalFilename
	}
	return ""
}

// USDZ returns the usdz filename, if any.
func (m FileModel) USDZ() string {
	if m.USDZFilename != "" {
		return m.USDZFilename
	}
	if strings.EqualFold(path.Ext(m.OriginalFilename), ".usdz") {
		return m.OriginalFilename
	}
	return ""
}

// Reality returns the reality filename, if any.
func (m FileModel) Reality() string {
	if m.RealityFilename != "" {
		return m.RealityFilename
	}
	if strings.EqualFold(path.Ext(m.OriginalFilename), ".reality") {
		return m.OriginalFilename
	}
	return ""
}

// URL joins cdn, the model path and filename. An empty filename yields "".
func (m FileModel) URL(cdn, filename string) string {
	if filename == "" {
		return ""
	}
	base := strings.TrimRight(cdn, "/")
	dir := strings.Trim(m.Path, "/")
	if dir == "" {
		return base + "/" + filename
	}
	return base + "/" + dir + "/" + filename
}

// Product is a sellable item with variations.
type Product struct {
	ID                 string `json:"-"`
	Title              string `json:"title"`
	SceneID            string `json:"scene_id"`
	ProductVariationID string `json:"product_variation_id"`
}

// ProductVariation is one configurable variant of a product.
type ProductVariation struct {
	ID          string `json:"-"`
	Title       string `json:"title"`
	ProductID   string `json:"product_id"`
	FileModelID string `json:"file_model_id"`
}

// Scene groups scene products and carries the stored anchor preference.
type Scene struct {
	ID              string `json:"-"`
	Title           string `json:"title"`
	AnchorAlignment string `json:"anchor_alignment"`
}

// SceneProduct places a product inside a scene.
type SceneProduct struct {
	ID        string `json:"-"`
	Title     string `json:"title"`
	SceneID   string `json:"scene_id"`
	ProductID string `json:"product_id"`
}

var (
	fileModelDecoder = hydrate.New(
		hydrate.LowerCase[FileModel]("anchor_alignment"),
		hydrate.Identity(func(m *FileModel, id string) { m.ID = id }),
	)
	productDecoder = hydrate.New(
		hydrate.Identity(func(p *Product, id string) { p.ID = id }),
	)
	variationDecoder = hydrate.New(
		hydrate.Identity(func(v *ProductVariation, id string) { v.ID = id }),
	)
	sceneDecoder = hydrate.New(
		hydrate.LowerCase[Scene]("anchor_alignment"),
		hydrate.Identity(func(s *Scene, id string) { s.ID = id }),
	)
	sceneProductDecoder = hydrate.New(
		hydrate.Identity(func(sp *SceneProduct, id string) { sp.ID = id }),
	)
)

func decodeAs[T any](r *Record, want Type, decoder *hydrate.Decoder[T]) (T, error) {
	var zero T
	if r == nil {
		return zero, fmt.Errorf("cms: decode %s: record is nil", want)
	}
	if r.Type != want {
		return zero, fmt.Errorf("cms: decode %s: record %s has type %s", want, r.Key(), r.Type)
	}
	return decoder.Decode(hydrate.Context{Type: string(r.Type), ID: r.ID}, r.Attributes)
}

// DecodeFileModel decodes a file_model record.
func DecodeFileModel(r *Record) (FileModel, error) {
	return decodeAs(r, TypeFileModel, fileModelDecoder)
}

// DecodeProduct decodes a product record.
func DecodeProduct(r *Record) (Product, error) {
	return decodeAs(r, TypeProduct, productDecoder)
}

// DecodeProductVariation decodes a product_variation record.
func DecodeProductVariation(r *Record) (ProductVariation, error) {
	return decodeAs(r, TypeProductVariation, variationDecoder)
}

// DecodeScene decodes a scene record.
func DecodeScene(r *Record) (Scene, error) {
	return decodeAs(r, TypeScene, sceneDecoder)
}

// DecodeSceneProduct decodes a scene_product record.
func DecodeSceneProduct(r *Record) (SceneProduct, error) {
	return decodeAs(r, TypeSceneProduct, sceneProductDecoder)
}
