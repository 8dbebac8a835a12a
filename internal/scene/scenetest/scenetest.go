// Package scenetest builds small text documents for tests.
package scenetest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"usd-instancer/internal/scene"
)

// Doc wraps prims in a layer header with defaultPrim root and Z up.
func Doc(prims ...string) string {
	return "#usda 1.0\n(\n    defaultPrim = \"root\"\n    upAxis = \"Z\"\n)\n\n" + strings.Join(prims, "\n")
}

// Parse parses src or fails the test.
func Parse(t testing.TB, src string) *scene.Document {
	t.Helper()
	doc, err := scene.Parse(src)
	require.NoError(t, err)
	return doc
}

// Xform is a def Xform translated by t and holding body.
func Xform(name string, t [3]float64, body ...string) string {
	return fmt.Sprintf("def Xform %q\n{\n%s%s}\n", name, translate(t), strings.Join(body, "\n"))
}

// Scope is a def Scope holding body.
func Scope(name string, body ...string) string {
	return fmt.Sprintf("def Scope %q\n{\n%s}\n", name, strings.Join(body, "\n"))
}

// Instance is an instanceable Xform referencing target in the same document.
func Instance(name, target string, t [3]float64) string {
	return fmt.Sprintf("def Xform %q (\n    instanceable = true\n    prepend references = <%s>\n)\n{\n%s}\n",
		name, target, translate(t))
}

// Quad is a one-face mesh whose points are shifted by size along x. The
// material binding is omitted when material is empty.
func Quad(name string, size float64, material string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "def Mesh %q (\n    prepend apiSchemas = [\"MaterialBindingAPI\"]\n)\n{\n", name)
	b.WriteString("    int[] faceVertexCounts = [4]\n")
	b.WriteString("    int[] faceVertexIndices = [0, 1, 2, 3]\n")
	fmt.Fprintf(&b, "    point3f[] points = [(0, 0, 0), (%g, 0, 0), (%g, 1, 0), (0, 1, 0)]\n", size, size)
	b.WriteString("    texCoord2f[] primvars:st = [(0, 0), (1, 0), (1, 1), (0, 1)] (\n        interpolation = \"faceVarying\"\n    )\n")
	if material != "" {
		fmt.Fprintf(&b, "    rel material:binding = <%s>\n", material)
	}
	b.WriteString("}\n")
	return b.String()
}

// PreviewMaterial is a preview-surface material at path with a diffuse
// color.
func PreviewMaterial(path string, r, g, bl float64) string {
	return fmt.Sprintf(`def Material %q
{
    token outputs:surface.connect = <%s/Shader.outputs:surface>

    def Shader "Shader"
    {
        uniform token info:id = "UsdPreviewSurface"
        color3f inputs:diffuseColor = (%g, %g, %g)
        token outputs:surface
    }
}
`, scene.BaseName(path), path, r, g, bl)
}

func translate(t [3]float64) string {
	if t == [3]float64{} {
		return ""
	}
	return fmt.Sprintf("    double3 xformOp:translate = (%g, %g, %g)\n    uniform token[] xformOpOrder = [\"xformOp:translate\"]\n",
		t[0], t[1], t[2])
}
