package texture

import "sync"

// AlphaDetector answers whether an authored texture path resolves to an
// image with transparent pixels. Results are cached per resolved file.
type AlphaDetector struct {
	index *Index

	mu     sync.Mutex
	cached map[string]bool
}

// NewAlphaDetector resolves paths through idx.
func NewAlphaDetector(idx *Index) *AlphaDetector {
	return &AlphaDetector{index: idx, cached: make(map[string]bool)}
}

// HasAlpha is false for paths that do not resolve or do not decode.
func (a *AlphaDetector) HasAlpha(authored string) bool {
	path, ok := a.index.ResolvePath(authored)
	if !ok {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if v, ok := a.cached[path]; ok {
		return v
	}
	img, err := Load(path)
	v := err == nil && HasAlpha(img)
	a.cached[path] = v
	return v
}
