package texture

import (
	"os"
	"path/filepath"
	"strings"
)

// SourceExts lists the image extensions considered as texture sources,
// in order of preference for the same stem.
var SourceExts = []string{".png", ".jpg", ".jpeg", ".tga", ".bmp", ".tif", ".tiff", ".webp"}

// TexturesDir is the conventional texture folder next to a document.
const TexturesDir = "textures"

// Index resolves authored texture paths to files on disk.
// Stems are matched case-insensitively.
type Index struct {
	base    string
	entries map[string]string // stem.lower() → full path
}

// BuildIndex scans baseDir/textures and baseDir for source images.
// Files in the textures folder win over loose files with the same stem.
func BuildIndex(baseDir string) *Index {
	idx := &Index{base: baseDir, entries: make(map[string]string)}
	for _, dir := range []string{filepath.Join(baseDir, TexturesDir), baseDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		found := map[string]string{}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if extRank(ext) < 0 {
				continue
			}
			stem := strings.ToLower(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
			path := filepath.Join(dir, e.Name())
			if prev, ok := found[stem]; ok && extRank(strings.ToLower(filepath.Ext(prev))) <= extRank(ext) {
				continue
			}
			found[stem] = path
		}
		for stem, path := range found {
			if _, ok := idx.entries[stem]; !ok {
				idx.entries[stem] = path
			}
		}
	}
	return idx
}

func extRank(ext string) int {
	for i, e := range SourceExts {
		if e == ext {
			return i
		}
	}
	return -1
}

// ResolvePath returns the file for an authored texture path: the path
// itself when it exists (relative paths are taken from the base directory
// and then from its textures folder), else the indexed file with the same
// stem.
func (idx *Index) ResolvePath(authored string) (string, bool) {
	name := strings.ReplaceAll(strings.Trim(authored, "@"), `\`, "/")
	if name == "" {
		return "", false
	}
	name = filepath.FromSlash(name)

	var candidates []string
	if filepath.IsAbs(name) {
		candidates = append(candidates, name)
	} else {
		candidates = append(candidates,
			filepath.Join(idx.base, name),
			filepath.Join(idx.base, TexturesDir, filepath.Base(name)),
		)
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
			return c, true
		}
	}

	base := filepath.Base(name)
	stem := strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
	path, ok := idx.entries[stem]
	return path, ok
}

// Len returns the number of indexed stems.
func (idx *Index) Len() int {
	return len(idx.entries)
}
