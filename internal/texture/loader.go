package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"usd-instancer/internal/atomicfile"
)

// ErrNotImage marks source files whose content is not a decodable image.
var ErrNotImage = errors.New("texture: not an image")

// decoders is keyed by the sniffed type. The tga package registers itself
// with an empty magic, so image.Decode cannot be trusted to route formats.
var decoders = map[string]func(io.Reader) (image.Image, error){
	matchers.TypePng.Extension:  png.Decode,
	matchers.TypeJpeg.Extension: jpeg.Decode,
	matchers.TypeBmp.Extension:  bmp.Decode,
	matchers.TypeTiff.Extension: tiff.Decode,
	matchers.TypeWebp.Extension: webp.Decode,
}

// Load reads an image file and returns it as NRGBA.
// Content is sniffed; TGA carries no magic and is accepted by extension.
func Load(path string) (*image.NRGBA, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("texture: read %s: %w", path, err)
	}
	decode, ok := decoderFor(raw, path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotImage, path)
	}
	img, err := decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("texture: decode %s: %w", path, err)
	}
	return toNRGBA(img), nil
}

func decoderFor(raw []byte, path string) (func(io.Reader) (image.Image, error), bool) {
	kind, _ := filetype.Image(raw)
	if decode, ok := decoders[kind.Extension]; ok {
		return decode, true
	}
	if kind == filetype.Unknown && strings.ToLower(filepath.Ext(path)) == ".tga" {
		return tga.Decode, true
	}
	return nil, false
}

// HasAlpha reports whether any pixel is not fully opaque.
func HasAlpha(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0xff {
			return true
		}
	}
	return false
}

// toNRGBA converts any image to NRGBA with its origin at zero.
func toNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok && n.Bounds().Min == (image.Point{}) {
		return n
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// savePNG writes img to path through a temporary sibling.
func savePNG(path string, img image.Image) error {
	return atomicfile.Write(path, func(w io.Writer) error {
		return png.Encode(w, img)
	})
}
