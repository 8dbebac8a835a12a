package scene

import "strings"

// Value holds an attribute value. Concrete types are bool, int64, float64,
// string, Token, Asset, Tuple, Matrix and slices of those
// ([]bool, []int64, []float64, []string, []Token, []Asset, []Tuple).
type Value any

// Token is an enumerated string value.
type Token string

// Asset is an asset path as authored, without the @ delimiters.
type Asset string

// Tuple is a fixed-width numeric aggregate: float3, color3f, texCoord2f, quatf (w, x, y, z) ...
type Tuple []float64

// Matrix is a 4×4 matrix in authored layout: rows, with translation in the last row.
type Matrix [16]float64

// Common type names.
const (
	TypeBool         = "bool"
	TypeInt          = "int"
	TypeIntArray     = "int[]"
	TypeFloat        = "float"
	TypeFloatArray   = "float[]"
	TypeDouble       = "double"
	TypeDouble3      = "double3"
	TypeString       = "string"
	TypeToken        = "token"
	TypeTokenArray   = "token[]"
	TypeAsset        = "asset"
	TypeColor3f      = "color3f"
	TypeFloat3       = "float3"
	TypeFloat2Array  = "float2[]"
	TypeFloat3Array  = "float3[]"
	TypePoint3f      = "point3f[]"
	TypeNormal3f     = "normal3f[]"
	TypeTexCoord2f   = "texCoord2f[]"
	TypeQuatf        = "quatf"
	TypeQuathArray   = "quath[]"
	TypeMatrix4d     = "matrix4d"
	TypeOpaque       = "opaque"
	TypeColor3fArray = "color3f[]"
)

// IsArrayType reports whether typeName names an array type.
func IsArrayType(typeName string) bool {
	return strings.HasSuffix(typeName, "[]")
}

// BaseType strips the array suffix.
func BaseType(typeName string) string {
	return strings.TrimSuffix(typeName, "[]")
}

type valueShape int

const (
	shapeUnknown valueShape = iota
	shapeBool
	shapeInt
	shapeFloat
	shapeString
	shapeToken
	shapeAsset
	shapeTuple
	shapeMatrix
)

func shapeOf(base string) valueShape {
	switch base {
	case "bool":
		return shapeBool
	case "int", "uint", "int64", "uint64", "uchar":
		return shapeInt
	case "float", "double", "half", "timecode":
		return shapeFloat
	case "string":
		return shapeString
	case "token":
		return shapeToken
	case "asset":
		return shapeAsset
	case "matrix4d":
		return shapeMatrix
	}
	for _, prefix := range []string{
		"float", "double", "half", "int", "point", "normal", "vector", "color", "texCoord", "quat", "matrix2", "matrix3",
	} {
		if strings.HasPrefix(base, prefix) {
			return shapeTuple
		}
	}
	return shapeUnknown
}

// CloneValue returns a copy of v that shares no slices with it.
func CloneValue(v Value) Value {
	switch t := v.(type) {
	case Tuple:
		return append(Tuple(nil), t...)
	case []bool:
		return append([]bool(nil), t...)
	case []int64:
		return append([]int64(nil), t...)
	case []float64:
		return append([]float64(nil), t...)
	case []string:
		return append([]string(nil), t...)
	case []Token:
		return append([]Token(nil), t...)
	case []Asset:
		return append([]Asset(nil), t...)
	case []Tuple:
		out := make([]Tuple, len(t))
		for i, e := range t {
			out[i] = append(Tuple(nil), e...)
		}
		return out
	default:
		return v
	}
}
