package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "drawing.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, 4, 4, color.White), 0644))

	im, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, im.Format())
	assert.NotEmpty(t, im.Bytes())
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	_, err := Load("drawing.bmp")
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"jpg", "jpeg", "png", "gif", "PNG"} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q) unexpected error: %v", s, err)
		}
	}
	if _, err := ParseFormat("tiff"); err == nil {
		t.Error("ParseFormat(tiff) expected error")
	}
}

func TestConvert_DeclaredFormatMatches(t *testing.T) {
	im, err := FromBytes(encodePNG(t, 8, 8, color.White), FormatPNG)
	require.NoError(t, err)

	converted, err := im.Convert(FormatJPEG)
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, converted.Format())

	// The payload must decode as what the tag claims.
	cfg, kind, err := image.DecodeConfig(bytes.NewReader(converted.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", kind)
	assert.Equal(t, 8, cfg.Width)

	// Source is untouched.
	assert.Equal(t, FormatPNG, im.Format())
}

func TestConvert_SameFormatIsNoop(t *testing.T) {
	im, err := FromBytes(encodePNG(t, 2, 2, color.Black), FormatPNG)
	require.NoError(t, err)
	out, err := im.Convert(FormatPNG)
	require.NoError(t, err)
	assert.Equal(t, im.Bytes(), out.Bytes())
}

func TestMergeHorizontal_Dimensions(t *testing.T) {
	a, err := FromBytes(encodePNG(t, 10, 6, color.White), FormatPNG)
	require.NoError(t, err)
	b, err := FromBytes(encodePNG(t, 7, 6, color.Black), FormatPNG)
	require.NoError(t, err)

	merged, err := a.MergeHorizontal(b)
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, merged.Format())

	cfg, _, err := image.DecodeConfig(bytes.NewReader(merged.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 17, cfg.Width)
	assert.Equal(t, 6, cfg.Height)
}

func TestDataURI(t *testing.T) {
	im, err := FromBytes(encodePNG(t, 1, 1, color.White), FormatPNG)
	require.NoError(t, err)
	uri := im.DataURI()
	assert.Contains(t, uri, "data:image/png;base64,")
}

func TestFromBytes_Empty(t *testing.T) {
	_, err := FromBytes(nil, FormatPNG)
	assert.Error(t, err)
}
