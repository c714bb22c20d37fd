// Package imaging provides the immutable image value type passed between the
// pipeline and the oracle. Images are kept in their encoded form; decoding
// only happens for the convert and merge operations.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
)

// Format identifies the encoding of an Image.
type Format string

const (
	FormatJPG  Format = "jpg"
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
)

// ParseFormat validates a format string (typically a file extension).
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatJPG:
		return FormatJPG, nil
	case FormatJPEG:
		return FormatJPEG, nil
	case FormatPNG:
		return FormatPNG, nil
	case FormatGIF:
		return FormatGIF, nil
	}
	return "", fmt.Errorf("unsupported image format %q (supported: jpg, jpeg, png, gif)", s)
}

// MIMEType returns the media type for the format.
func (f Format) MIMEType() string {
	switch f {
	case FormatJPG, FormatJPEG:
		return "image/jpeg"
	case FormatGIF:
		return "image/gif"
	default:
		return "image/png"
	}
}

// Image is an encoded raster image plus its format tag. The zero value is
// invalid; construct via Load or FromBytes. All operations return new
// instances and never mutate the receiver.
type Image struct {
	data   []byte
	format Format
}

// Load reads an image file. The format is taken from the file extension.
func Load(path string) (Image, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	format, err := ParseFormat(ext)
	if err != nil {
		return Image{}, fmt.Errorf("load %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("load %s: %w", path, err)
	}
	return Image{data: data, format: format}, nil
}

// FromBytes wraps already-encoded image data.
func FromBytes(data []byte, format Format) (Image, error) {
	if _, err := ParseFormat(string(format)); err != nil {
		return Image{}, err
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("empty image data")
	}
	return Image{data: append([]byte(nil), data...), format: format}, nil
}

// Bytes returns a copy of the encoded data.
func (im Image) Bytes() []byte {
	return append([]byte(nil), im.data...)
}

// Format returns the format tag.
func (im Image) Format() Format {
	return im.format
}

// Base64 returns the encoded data as standard base64.
func (im Image) Base64() string {
	return base64.StdEncoding.EncodeToString(im.data)
}

// DataURI returns a data: URI suitable for OpenAI-style image slots.
func (im Image) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", im.format.MIMEType(), im.Base64())
}

// Convert re-encodes the image in the target format. This is a lossless
// reformat (no resampling); converting to the current format returns the
// image unchanged.
func (im Image) Convert(target Format) (Image, error) {
	if _, err := ParseFormat(string(target)); err != nil {
		return Image{}, err
	}
	if im.format == target || (im.format.MIMEType() == target.MIMEType()) {
		return Image{data: im.data, format: target}, nil
	}
	src, _, err := image.Decode(bytes.NewReader(im.data))
	if err != nil {
		return Image{}, fmt.Errorf("convert: decode %s: %w", im.format, err)
	}
	return encode(src, target)
}

// MergeHorizontal places other to the right of the receiver on a shared
// canvas: width is the sum of both widths, height is the receiver's height.
// The result carries the receiver's format.
func (im Image) MergeHorizontal(other Image) (Image, error) {
	left, _, err := image.Decode(bytes.NewReader(im.data))
	if err != nil {
		return Image{}, fmt.Errorf("merge: decode left image: %w", err)
	}
	right, _, err := image.Decode(bytes.NewReader(other.data))
	if err != nil {
		return Image{}, fmt.Errorf("merge: decode right image: %w", err)
	}

	lb, rb := left.Bounds(), right.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, lb.Dx()+rb.Dx(), lb.Dy()))
	draw.Draw(canvas, image.Rect(0, 0, lb.Dx(), lb.Dy()), left, lb.Min, draw.Src)
	draw.Draw(canvas, image.Rect(lb.Dx(), 0, lb.Dx()+rb.Dx(), lb.Dy()), right, rb.Min, draw.Src)

	return encode(canvas, im.format)
}

func encode(src image.Image, format Format) (Image, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatPNG:
		err = png.Encode(&buf, src)
	case FormatJPG, FormatJPEG:
		err = jpeg.Encode(&buf, src, nil)
	case FormatGIF:
		err = gif.Encode(&buf, src, nil)
	default:
		err = fmt.Errorf("unsupported image format %q", format)
	}
	if err != nil {
		return Image{}, fmt.Errorf("encode %s: %w", format, err)
	}
	return Image{data: buf.Bytes(), format: format}, nil
}
