package scene

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/h2non/filetype"

	"usd-instancer/internal/atomicfile"
)

// ErrUnsupportedFormat marks inputs that are neither text nor the binary container.
var ErrUnsupportedFormat = errors.New("scene: unsupported format")

// Encoding selects the on-disk layout.
type Encoding int

const (
	EncodingText Encoding = iota
	EncodingBinary
)

// Ext returns the file extension for the encoding.
func (e Encoding) Ext() string {
	if e == EncodingBinary {
		return ".usdc"
	}
	return ".usda"
}

var (
	binaryType = filetype.NewType("usdc", "application/x-scene-binary")
	crateMagic = []byte("PXR-USDC")
)

func init() {
	filetype.AddMatcher(binaryType, func(buf []byte) bool {
		return bytes.HasPrefix(buf, binaryMagic)
	})
}

// Sniff classifies a document by its leading bytes.
func Sniff(head []byte) (Encoding, error) {
	kind, _ := filetype.Match(head)
	switch {
	case kind == binaryType:
		return EncodingBinary, nil
	case bytes.HasPrefix(head, crateMagic):
		return 0, fmt.Errorf("%w: crate files must be exported as text or the binary container", ErrUnsupportedFormat)
	case bytes.HasPrefix(bytes.TrimLeft(head, " \t\r\n\xef\xbb\xbf"), []byte(textHeader)):
		return EncodingText, nil
	}
	return 0, ErrUnsupportedFormat
}

// ReadFile loads a document, choosing the decoder by content.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scene: read %s: %w", path, err)
	}
	head := data
	if len(head) > 64 {
		head = head[:64]
	}
	enc, err := Sniff(head)
	if err != nil {
		return nil, fmt.Errorf("scene: open %s: %w", path, err)
	}
	var doc *Document
	if enc == EncodingBinary {
		doc, err = ParseBinary(data)
	} else {
		doc, err = Parse(string(data))
	}
	if err != nil {
		return nil, fmt.Errorf("scene: parse %s: %w", path, err)
	}
	return doc, nil
}

// Encode writes doc with the given encoding.
func Encode(w io.Writer, doc *Document, enc Encoding) error {
	if enc == EncodingBinary {
		return WriteBinary(w, doc)
	}
	return Write(w, doc)
}

// WriteFile writes doc to a temporary sibling and renames it over path,
// so path never holds a partial document.
func WriteFile(path string, doc *Document, enc Encoding) error {
	return atomicfile.Write(path, func(w io.Writer) error {
		return Encode(w, doc, enc)
	})
}
