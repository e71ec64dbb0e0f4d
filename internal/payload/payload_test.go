package payload

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalRoundTripText(t *testing.T) {
	p := NewText("hello world")
	data, err := p.Marshal()
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, KindText, got.Kind)
	require.Equal(t, "hello world", got.Text)
}

func TestMarshalRoundTripImage(t *testing.T) {
	p := NewImage(2, 3, []byte{1, 2, 3, 4})
	data, err := p.Marshal()
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, KindImage, got.Kind)
	require.Equal(t, uint32(2), got.Image.Width)
	require.Equal(t, uint32(3), got.Image.Height)
	require.Equal(t, []byte{1, 2, 3, 4}, got.Image.PNG)
}

func TestMarshalRoundTripFiles(t *testing.T) {
	p := NewFiles([]FileEntry{
		{Name: "test.txt", Data: []byte("content")},
		{Name: "other.bin", Data: []byte{0xFF, 0x00}},
	})
	data, err := p.Marshal()
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, KindFiles, got.Kind)
	require.Len(t, got.Files, 2)
	require.Equal(t, "test.txt", got.Files[0].Name)
	require.Equal(t, []byte("content"), got.Files[0].Data)
	require.Equal(t, "other.bin", got.Files[1].Name)
	require.Equal(t, []byte{0xFF, 0x00}, got.Files[1].Data)
}

func TestUnmarshalRejectsUnknownKind(t *testing.T) {
	_, err := Unmarshal([]byte(`{"kind":"video"}`))
	require.Error(t, err)
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	_, err := Unmarshal([]byte("not json"))
	require.Error(t, err)
}

func TestMarshalRejectsUnknownKind(t *testing.T) {
	_, err := Payload{Kind: "video"}.Marshal()
	require.Error(t, err)
}

func TestContentTypeString(t *testing.T) {
	require.Equal(t, "text", NewText("").ContentTypeString())
	require.Equal(t, "image", NewImage(0, 0, nil).ContentTypeString())
	require.Equal(t, "files", NewFiles(nil).ContentTypeString())
}

func TestRGBAToPNGRoundTrip(t *testing.T) {
	const width, height = 4, 4
	rgba := make([]byte, 0, width*height*4)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			rgba = append(rgba, byte(x*64), byte(y*64), 128, 255)
		}
	}

	pngData, err := RGBAToPNG(rgba, width, height)
	require.NoError(t, err)
	require.NotEmpty(t, pngData)

	w, h, got, err := PNGToRGBA(pngData)
	require.NoError(t, err)
	require.Equal(t, uint32(width), w)
	require.Equal(t, uint32(height), h)
	require.Equal(t, rgba, got)
}

func TestRGBAToPNGRoundTripWithAlpha(t *testing.T) {
	// Semi-transparent pixels must survive pixel-exact.
	rgba := []byte{
		200, 100, 50, 128,
		0, 0, 0, 0,
		255, 255, 255, 1,
		10, 20, 30, 255,
	}
	pngData, err := RGBAToPNG(rgba, 2, 2)
	require.NoError(t, err)

	w, h, got, err := PNGToRGBA(pngData)
	require.NoError(t, err)
	require.Equal(t, uint32(2), w)
	require.Equal(t, uint32(2), h)
	require.Equal(t, rgba, got)
}

func TestRGBAToPNGRejectsBadLength(t *testing.T) {
	_, err := RGBAToPNG([]byte{1, 2, 3}, 2, 2)
	require.Error(t, err)
}

func TestPNGToRGBARejectsGarbage(t *testing.T) {
	_, _, _, err := PNGToRGBA([]byte("definitely not a png"))
	require.Error(t, err)
}
