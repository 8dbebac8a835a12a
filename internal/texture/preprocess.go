package texture

import (
	"image"
	"math"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/transform"

	"usd-instancer/internal/config"
)

// bumpStrength scales height gradients when a normal map is derived from a
// height field.
const bumpStrength = 5.0

// Grayscale returns the luminance of img in every color channel.
func Grayscale(img image.Image) *image.NRGBA {
	return toNRGBA(effect.Grayscale(img))
}

// InvertGray returns one minus the luminance of img.
func InvertGray(img image.Image) *image.NRGBA {
	return toNRGBA(effect.Invert(effect.Grayscale(img)))
}

// CombineAlpha returns base with the luminance of opacity as its alpha
// channel. Opacity is resampled to the size of base when they differ.
func CombineAlpha(base, opacity image.Image) *image.NRGBA {
	src := toNRGBA(base)
	dst := image.NewNRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)

	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	var mask image.Image = effect.Grayscale(opacity)
	if b := opacity.Bounds(); b.Dx() != w || b.Dy() != h {
		mask = transform.Resize(mask, w, h, transform.Linear)
	}
	m := toNRGBA(mask)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Pix[dst.PixOffset(x, y)+3] = m.Pix[m.PixOffset(x, y)]
		}
	}
	return dst
}

// BumpToNormal derives a tangent-space normal map from a height field.
// The result uses the DirectX convention, green pointing down.
func BumpToNormal(height image.Image, strength float64) *image.NRGBA {
	g := toNRGBA(effect.Grayscale(height))
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	at := func(x, y int) float64 {
		x = clampInt(x, 0, w-1)
		y = clampInt(y, 0, h-1)
		return float64(g.Pix[g.PixOffset(x, y)]) / 255
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := (at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)) -
				(at(x-1, y-1) + 2*at(x-1, y) + at(x-1, y+1))
			dy := (at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)) -
				(at(x-1, y-1) + 2*at(x, y-1) + at(x+1, y-1))
			nx, ny, nz := -dx*strength, -dy*strength, 1.0
			l := math.Sqrt(nx*nx + ny*ny + nz*nz)
			i := dst.PixOffset(x, y)
			dst.Pix[i] = unitToByte(nx / l)
			dst.Pix[i+1] = unitToByte(ny / l)
			dst.Pix[i+2] = unitToByte(nz / l)
			dst.Pix[i+3] = 0xff
		}
	}
	return dst
}

// FlipGreen converts a normal map between the OpenGL and DirectX
// conventions in place.
func FlipGreen(img *image.NRGBA) {
	for i := 1; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff - img.Pix[i]
	}
}

func unitToByte(v float64) uint8 {
	return uint8(math.Round((v*0.5 + 0.5) * 255))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var (
	openGLMarkers  = []string{"_gl", "_ogl", "_opengl"}
	directXMarkers = []string{"_dx", "_directx"}
)

// NormalStyle returns the convention of the normal map at path. An explicit
// configured style wins; otherwise name markers decide and unmarked maps
// are taken as OpenGL.
func NormalStyle(path, configured string) string {
	if configured == config.NormalDX || configured == config.NormalOGL {
		return configured
	}
	stem := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	for _, m := range openGLMarkers {
		if hasMarker(stem, m) {
			return config.NormalOGL
		}
	}
	for _, m := range directXMarkers {
		if hasMarker(stem, m) {
			return config.NormalDX
		}
	}
	return config.NormalOGL
}

// hasMarker matches m as a whole name token, so "_gl" does not match
// "_gloss".
func hasMarker(stem, m string) bool {
	return strings.HasSuffix(stem, m) || strings.Contains(stem, m+"_")
}
