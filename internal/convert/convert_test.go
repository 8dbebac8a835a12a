package convert_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usd-instancer/internal/collect"
	"usd-instancer/internal/convert"
	"usd-instancer/internal/mathutil"
	st "usd-instancer/internal/scene/scenetest"
)

const bark = "/root/_materials/Bark"

func collectDoc(t *testing.T, src string) *collect.Model {
	t.Helper()
	m, err := collect.Collect(st.Parse(t, src), collect.Options{})
	require.NoError(t, err)
	return m
}

func yard(name string, offset float64, xs ...float64) string {
	body := []string{st.Quad("Ground", 1, "")}
	for i, x := range xs {
		body = append(body, st.Instance(name+"_inst"+string(rune('0'+i)), "/root/prototypes/Tree__938870308", [3]float64{x, 0, 0}))
	}
	return st.Xform(name, [3]float64{offset, 0, 0}, body...)
}

func forwardDoc(anchors ...string) string {
	body := append([]string{}, anchors...)
	body = append(body,
		st.Scope("prototypes", st.Xform("Tree__938870308", [3]float64{}, st.Quad("TreeMesh", 2, bark))),
		st.Scope("_materials", st.PreviewMaterial(bark, 0.4, 0.3, 0.2)),
	)
	return st.Doc(st.Xform("root", [3]float64{}, body...))
}

func TestScenarioA(t *testing.T) {
	m := collectDoc(t, forwardDoc(yard("Yard", 10, 0, 1, 2, 3, 4)))

	cases := []struct {
		name   string
		policy convert.DegeneratePolicy
		want   int
	}{
		{name: "origin echo dropped", policy: convert.DropOriginEcho, want: 4},
		{name: "keep all", policy: convert.KeepAll, want: 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := convert.Convert(m, convert.Options{Policy: tc.policy})
			require.Len(t, out.Instancers, 1)
			in := out.Instancers[0]
			assert.Equal(t, "/Root/Yard/Tree_instancer", in.Path)
			assert.Equal(t, "/Root/Yard", in.AnchorPath)
			assert.Equal(t, "/Root/Yard/Tree_instancer/Prototypes/Tree_938870308", in.Prototype.Path)
			assert.Len(t, in.Placements, tc.want)
			assert.Len(t, in.Dropped, 5-tc.want)
			assert.Equal(t, 1, in.FaceCount)
			last := in.Placements[len(in.Placements)-1]
			assert.InDelta(t, 4, last.Position[0], 1e-9)
			assert.Equal(t, mathutil.Vec3{1, 1, 1}, roundVec(last.Scale))

			require.Len(t, out.Anchors, 1)
			assert.Equal(t, "/Root/Yard", out.Anchors[0].Path)
			assert.Empty(t, out.External)
		})
	}
}

func TestScenarioB(t *testing.T) {
	m := collectDoc(t, st.Doc(st.Xform("root", [3]float64{},
		st.Xform("Chair.001", [3]float64{1, 0, 0}, st.Quad("ChairMesh", 1, "")),
		st.Xform("Chair.002", [3]float64{2, 0, 0}, st.Quad("ChairMesh", 1, "")),
		st.Xform("Chair.003", [3]float64{3, 0, 0}, st.Quad("ChairMesh", 1, "")),
		st.Xform("Table", [3]float64{0, 5, 0}, st.Quad("TableMesh", 3, "")),
	)))

	out := convert.Convert(m, convert.Options{})
	require.Len(t, out.Instancers, 1)
	assert.Equal(t, "/Root/Chair_instancer", out.Instancers[0].Path)
	assert.Len(t, out.Instancers[0].Placements, 3)
	assert.Empty(t, out.Instancers[0].Dropped)

	require.Len(t, out.Objects, 1)
	obj := out.Objects[0]
	assert.Equal(t, "/Root/Table", obj.Path)
	assert.Equal(t, mathutil.Vec3{0, 5, 0}, obj.Transform.Translation())
	p, ok := out.NodePath(obj.Source)
	require.True(t, ok)
	assert.Equal(t, "/Root/Table", p)
}

func TestSingleInstanceBecomesObject(t *testing.T) {
	m := collectDoc(t, forwardDoc(yard("Yard", 0, 7)))

	out := convert.Convert(m, convert.Options{})
	assert.Empty(t, out.Instancers)
	require.Len(t, out.Objects, 1)
	obj := out.Objects[0]
	assert.Equal(t, "/Root/Yard/Yard_inst0", obj.Path)
	assert.Equal(t, "Tree__938870308", obj.Source.Name)
	assert.Equal(t, mathutil.Vec3{7, 0, 0}, obj.Transform.Translation())
}

func TestExternalPrototypesAreShared(t *testing.T) {
	m := collectDoc(t, forwardDoc(yard("Yard", 0, 1, 2), yard("Park", 50, 1, 2, 3)))

	out := convert.Convert(m, convert.Options{UseExternalReferences: true, Ext: ".usdc"})
	require.Len(t, out.Instancers, 2)
	require.Len(t, out.External, 1)
	ext := out.External[0]
	assert.Equal(t, "Tree", ext.Name)
	assert.Equal(t, "Instance_Objs/Tree.usdc", ext.File)
	assert.Equal(t, []string{bark}, ext.Materials)
	assert.Len(t, ext.Users, 2)
	for _, in := range out.Instancers {
		assert.Same(t, ext, in.Prototype.External)
	}
	assert.Equal(t, "/Root/Park/Tree_instancer", out.Instancers[1].Path)
}

func TestMaterialPaths(t *testing.T) {
	m := collectDoc(t, forwardDoc(yard("Yard", 0, 1, 2)))

	out := convert.Convert(m, convert.Options{})
	require.Len(t, out.Materials, 1)
	assert.Equal(t, "/Root/Looks/Bark", out.Materials[0].Path)
	p, ok := out.MaterialPath(bark)
	require.True(t, ok)
	assert.Equal(t, "/Root/Looks/Bark", p)
	_, ok = out.MaterialPath("/nowhere")
	assert.False(t, ok)
}

func TestExistingInstancerPaths(t *testing.T) {
	src := `#usda 1.0
(
    defaultPrim = "root"
)

def Xform "root"
{
    def Xform "Grove"
    {
        def PointInstancer "Trees"
        {
            rel prototypes = </root/Grove/Trees/Prototypes/Tree>
            int[] protoIndices = [0, 0]

            def Scope "Prototypes"
            {
                def Mesh "Tree"
                {
                    int[] faceVertexCounts = [3]
                    int[] faceVertexIndices = [0, 1, 2]
                    point3f[] points = [(0, 0, 0), (1, 0, 0), (1, 1, 0)]
                }
            }
        }
    }
}
`
	out := convert.Convert(collectDoc(t, src), convert.Options{})
	require.Len(t, out.Objects, 1)
	assert.Equal(t, "/Root/Grove", out.Objects[0].Path)
	require.Len(t, out.Existing, 1)
	assert.Equal(t, "/Root/Grove/Trees", out.Existing[0].Path)
	assert.Equal(t, 2, out.Existing[0].Source.InstanceCount)
}

func TestCleanName(t *testing.T) {
	cases := map[string]string{
		"Chair.001":      "Chair_001",
		"my  object!":    "my_object",
		"3dModel":        "_3dModel",
		"__odd__name__":  "odd_name",
		"Tree__93887030": "Tree_93887030",
		"***":            "_",
	}
	for in, want := range cases {
		assert.Equal(t, want, convert.CleanName(in), in)
	}
}

func TestPolicies(t *testing.T) {
	at := func(xs ...float64) []convert.Placement {
		out := make([]convert.Placement, len(xs))
		for i, x := range xs {
			out[i] = convert.Placement{Position: mathutil.Vec3{x, 0, 0}}
		}
		return out
	}
	assert.Equal(t, []int{0}, convert.DropOriginEcho(at(0, 1, 2)))
	assert.Empty(t, convert.DropOriginEcho(at(1, 0, 2)))
	assert.Empty(t, convert.DropOriginEcho(nil))
	assert.Empty(t, convert.KeepAll(at(0, 1)))

	p, err := convert.PolicyByName("keep")
	require.NoError(t, err)
	assert.Empty(t, p(at(0)))
	_, err = convert.PolicyByName("first")
	assert.Error(t, err)
}

func roundVec(v mathutil.Vec3) mathutil.Vec3 {
	for i := range v {
		v[i] = float64(int64(v[i]*1e6+0.5)) / 1e6
	}
	return v
}
