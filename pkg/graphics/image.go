package graphics

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/spf13/afero"
	_ "golang.org/x/image/bmp" // BMP デコーダを登録

	"github.com/zurustar/palscript/pkg/fileutil"
)

// DecodePaletted decodes a 4 or 8-bit BMP (RLE or uncompressed) or any
// registered format that yields a paletted image. Palette index 0 is made
// transparent.
func DecodePaletted(r io.Reader) (*image.Paletted, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	var img *image.Paletted
	switch bits := bmpBitCount(data); {
	case bits == 4 || bits == 8:
		img, err = DecodeBMPFromBytes(data)
		if err != nil {
			return nil, err
		}
	default:
		decoded, format, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode image: %w", err)
		}
		p, ok := decoded.(*image.Paletted)
		if !ok {
			return nil, fmt.Errorf("%w: %s image decodes to %T", ErrNotPaletted, format, decoded)
		}
		img = p
	}

	if len(img.Palette) > 0 {
		img.Palette = append(color.Palette(nil), img.Palette...)
		img.Palette[0] = color.RGBA{}
	}
	return img, nil
}

// LoadPaletted opens path on fsys (case-insensitively) and decodes it.
func LoadPaletted(fsys afero.Fs, path string) (*image.Paletted, error) {
	data, err := fileutil.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	img, err := DecodePaletted(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return nil
}

// ClonePaletted returns a copy of img sharing its palette.
func ClonePaletted(img *image.Paletted) *image.Paletted {
	out := image.NewPaletted(img.Rect, img.Palette)
	copy(out.Pix, img.Pix)
	return out
}
