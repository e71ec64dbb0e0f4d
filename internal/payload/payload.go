// Package payload defines the canonical clipboard payload and its codec.
//
// A payload is a tagged union of text, image, and file-set content. The wire
// form is a JSON envelope keyed by the "kind" field, deterministic for a
// given payload and self-describing enough to round-trip the variant. Images
// travel as PNG; the clipboard backend also trades in PNG bytes, so the
// worker passes them through unconverted.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"image/png"
)

// Kind tags the payload variant.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFiles Kind = "files"
)

// Image is a PNG-encoded image with its pixel dimensions.
type Image struct {
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
	PNG    []byte `json:"png"`
}

// FileEntry is a single named file in a Files payload.
type FileEntry struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// Payload is the tagged clipboard content. Exactly the field matching Kind
// is meaningful; the others are empty.
type Payload struct {
	Kind  Kind        `json:"kind"`
	Text  string      `json:"text,omitempty"`
	Image *Image      `json:"image,omitempty"`
	Files []FileEntry `json:"files,omitempty"`
}

// NewText builds a text payload.
func NewText(s string) Payload { return Payload{Kind: KindText, Text: s} }

// NewImage builds an image payload.
func NewImage(width, height uint32, pngData []byte) Payload {
	return Payload{Kind: KindImage, Image: &Image{Width: width, Height: height, PNG: pngData}}
}

// NewFiles builds a file-set payload.
func NewFiles(files []FileEntry) Payload { return Payload{Kind: KindFiles, Files: files} }

// ContentTypeString returns the wire content-type tag for p.
func (p Payload) ContentTypeString() string { return string(p.Kind) }

// Marshal serialises p to its canonical byte form.
func (p Payload) Marshal() ([]byte, error) {
	switch p.Kind {
	case KindText, KindFiles:
	case KindImage:
		if p.Image == nil {
			return nil, fmt.Errorf("payload marshal: image variant without image data")
		}
	default:
		return nil, fmt.Errorf("payload marshal: unknown kind %q", p.Kind)
	}
	return json.Marshal(p)
}

// Unmarshal parses the canonical byte form back into a payload.
func Unmarshal(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("payload unmarshal: %w", err)
	}
	switch p.Kind {
	case KindText, KindFiles:
	case KindImage:
		if p.Image == nil {
			return Payload{}, fmt.Errorf("payload unmarshal: image variant without image data")
		}
	default:
		return Payload{}, fmt.Errorf("payload unmarshal: unknown kind %q", p.Kind)
	}
	return p, nil
}

// RGBAToPNG encodes raw RGBA pixels (4 bytes per pixel, R,G,B,A order,
// stride 4*w) as PNG.
func RGBAToPNG(rgba []byte, width, height uint32) ([]byte, error) {
	if uint32(len(rgba)) != 4*width*height {
		return nil, fmt.Errorf("rgba length %d does not match %dx%d", len(rgba), width, height)
	}
	img := &image.NRGBA{
		Pix:    rgba,
		Stride: int(4 * width),
		Rect:   image.Rect(0, 0, int(width), int(height)),
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}
	return buf.Bytes(), nil
}

// PNGToRGBA decodes PNG bytes to raw RGBA pixels, returning (width, height, rgba).
func PNGToRGBA(data []byte) (uint32, uint32, []byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, 0, nil, fmt.Errorf("png decode: %w", err)
	}
	b := img.Bounds()
	// 8-bit RGBA PNGs decode to *image.NRGBA directly; anything else
	// (paletted, 16-bit, grayscale) is converted.
	if n, ok := img.(*image.NRGBA); ok && n.Stride == 4*b.Dx() && b.Min == (image.Point{}) {
		return uint32(b.Dx()), uint32(b.Dy()), n.Pix, nil
	}
	n := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(n, n.Rect, img, b.Min, draw.Src)
	return uint32(b.Dx()), uint32(b.Dy()), n.Pix, nil
}
