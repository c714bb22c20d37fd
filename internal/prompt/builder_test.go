package prompt

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cad3dify/internal/imaging"
	"cad3dify/internal/perception"
)

func testImage(t *testing.T, w, h int) imaging.Image {
	t.Helper()
	src := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))
	img, err := imaging.FromBytes(buf.Bytes(), imaging.FormatPNG)
	require.NoError(t, err)
	return img
}

func testJPEG(t *testing.T, w, h int) imaging.Image {
	t.Helper()
	src := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src.Set(x, y, color.RGBA{B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, nil))
	img, err := imaging.FromBytes(buf.Bytes(), imaging.FormatJPG)
	require.NoError(t, err)
	return img
}

func TestGenerateRequest(t *testing.T) {
	b := NewBuilder(perception.ProfileFor(perception.ModelGPT, 0))
	req, err := b.Generate(testImage(t, 8, 8))
	require.NoError(t, err)

	assert.Len(t, req.Images, 1)
	assert.Contains(t, req.User, "CadQuery")
	assert.Contains(t, req.User, OutputPlaceholder)
	assert.Contains(t, req.User, "```python", "exemplar corpus is embedded")
	assert.NotEmpty(t, req.System)
}

func TestRefineSeparateModeKeepsTwoSlots(t *testing.T) {
	b := NewBuilder(perception.ProfileFor(perception.ModelClaude, 0))
	req, err := b.Refine(testImage(t, 8, 8), testImage(t, 6, 8), "result = 1")
	require.NoError(t, err)

	assert.Len(t, req.Images, 2, "separate mode never merges")
	assert.Contains(t, req.User, "first attached image")
	assert.Contains(t, req.User, "result = 1")
}

func TestRefineMergedModeSingleSlot(t *testing.T) {
	b := NewBuilder(perception.ProfileFor(perception.ModelLlama, 0))
	ref := testImage(t, 10, 8)
	rendered := testImage(t, 6, 8)

	req, err := b.Refine(ref, rendered, "result = 1")
	require.NoError(t, err)

	require.Len(t, req.Images, 1, "merged mode produces exactly one slot")
	assert.Contains(t, req.User, "side by side")

	cfg, kind, err := image.DecodeConfig(bytes.NewReader(req.Images[0].Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "png", kind, "llama profile forces PNG")
	assert.Equal(t, 16, cfg.Width, "widths add when merging")
}

func TestRefineClaudeConvertsJPEGToPNG(t *testing.T) {
	b := NewBuilder(perception.ProfileFor(perception.ModelClaude, 0))
	req, err := b.Refine(testJPEG(t, 8, 8), testJPEG(t, 6, 8), "result = 1")
	require.NoError(t, err)

	require.Len(t, req.Images, 2)
	for i, img := range req.Images {
		assert.Equal(t, imaging.FormatPNG, img.Format(), "image %d format tag", i)
		_, kind, err := image.DecodeConfig(bytes.NewReader(img.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, "png", kind, "image %d encoding", i)
	}
}

func TestGenerateMergedModeSingleImagePassthrough(t *testing.T) {
	b := NewBuilder(perception.ProfileFor(perception.ModelLlama, 0))
	req, err := b.Generate(testImage(t, 8, 8))
	require.NoError(t, err)
	assert.Len(t, req.Images, 1)
}

func TestUnknownImageModeRejected(t *testing.T) {
	profile := perception.ProfileFor(perception.ModelGPT, 0)
	profile.ImageMode = perception.ImageMode("sideways")
	b := NewBuilder(profile)

	_, err := b.Generate(testImage(t, 8, 8))
	require.Error(t, err)
	assert.ErrorIs(t, err, perception.ErrUnsupportedProvider)
}

func TestRefineRequestKeepsPlaceholderContract(t *testing.T) {
	b := NewBuilder(perception.ProfileFor(perception.ModelGPT, 0))
	req, err := b.Refine(testImage(t, 8, 8), testImage(t, 8, 8), "script")
	require.NoError(t, err)
	assert.True(t, strings.Contains(req.User, OutputPlaceholder))
}
