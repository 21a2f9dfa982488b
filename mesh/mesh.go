// Package mesh holds the static geometry drawn by the renderer.
package mesh

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"github.com/mokiat/go-data-front/decoder/obj"
	"github.com/xlab/linmath"

	"github.com/ironsmile/spinning-triangle-go/gpu"
	"github.com/ironsmile/spinning-triangle-go/models"
)

// Vertex is one interleaved vertex as laid out in the vertex buffer.
type Vertex struct {
	Position linmath.Vec3
	Color    linmath.Vec3
}

// Stride is the size of Vertex in bytes.
const Stride = int(unsafe.Sizeof(Vertex{}))

// IndexFormat is the format of Mesh.Indices.
const IndexFormat = gpu.FormatR32Uint

// InputLayout describes Vertex to the pipeline.
var InputLayout = []gpu.InputElement{
	{
		Semantic: "POSITION",
		Format:   gpu.FormatR32G32B32Float,
		Slot:     0,
		Offset:   int(unsafe.Offsetof(Vertex{}.Position)),
		Class:    gpu.PerVertexData,
	},
	{
		Semantic: "COLOR",
		Format:   gpu.FormatR32G32B32Float,
		Slot:     0,
		Offset:   int(unsafe.Offsetof(Vertex{}.Color)),
		Class:    gpu.PerVertexData,
	},
}

// Mesh is an indexed triangle list.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// Triangle returns the built-in triangle with a red, a green and a blue
// corner.
func Triangle() *Mesh {
	return &Mesh{
		Vertices: []Vertex{
			{Position: linmath.Vec3{1, -1, 0}, Color: linmath.Vec3{1, 0, 0}},
			{Position: linmath.Vec3{-1, -1, 0}, Color: linmath.Vec3{0, 1, 0}},
			{Position: linmath.Vec3{0, 1, 0}, Color: linmath.Vec3{0, 0, 1}},
		},
		Indices: []uint32{0, 1, 2},
	}
}

// Load decodes the OBJ file at path. An empty path loads the embedded
// triangle.
func Load(path string) (*Mesh, error) {
	var (
		r   io.ReadCloser
		err error
	)
	if path == "" {
		r, err = models.FS.Open(models.Triangle)
	} else {
		r, err = os.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening mesh: %w", err)
	}
	defer r.Close()

	m, err := DecodeOBJ(r)
	if err != nil {
		return nil, fmt.Errorf("decoding mesh %s: %w", path, err)
	}
	return m, nil
}

// vertexKey identifies a distinct face corner.
type vertexKey struct {
	vertex   int64
	texCoord int64
}

// DecodeOBJ reads a Wavefront OBJ model. Polygons are triangulated as fans.
// OBJ has no vertex colors, so three component texture coordinates are read
// as colors; corners without one are white.
func DecodeOBJ(r io.Reader) (*Mesh, error) {
	decoder := obj.NewDecoder(obj.DefaultLimits())
	model, err := decoder.Decode(r)
	if err != nil {
		return nil, err
	}

	m := &Mesh{}
	seen := make(map[vertexKey]uint32)
	corner := func(ref obj.Reference) (uint32, error) {
		if ref.VertexIndex < 0 || ref.VertexIndex >= int64(len(model.Vertices)) {
			return 0, fmt.Errorf("vertex reference %d out of range, model has %d vertices",
				ref.VertexIndex+1, len(model.Vertices))
		}
		key := vertexKey{vertex: ref.VertexIndex, texCoord: obj.UndefinedIndex}
		if ref.HasTexCoord() {
			if ref.TexCoordIndex < 0 || ref.TexCoordIndex >= int64(len(model.TexCoords)) {
				return 0, fmt.Errorf("texture coordinate reference %d out of range, model has %d",
					ref.TexCoordIndex+1, len(model.TexCoords))
			}
			key.texCoord = ref.TexCoordIndex
		}
		if idx, ok := seen[key]; ok {
			return idx, nil
		}

		pos := model.GetVertexFromReference(ref)
		v := Vertex{
			Position: linmath.Vec3{float32(pos.X), float32(pos.Y), float32(pos.Z)},
			Color:    linmath.Vec3{1, 1, 1},
		}
		if ref.HasTexCoord() {
			tc := model.GetTexCoordFromReference(ref)
			v.Color = linmath.Vec3{float32(tc.U), float32(tc.V), float32(tc.W)}
		}

		idx := uint32(len(m.Vertices))
		m.Vertices = append(m.Vertices, v)
		seen[key] = idx
		return idx, nil
	}

	for _, object := range model.Objects {
		for _, mesh := range object.Meshes {
			for _, face := range mesh.Faces {
				refs := face.References
				if len(refs) < 3 {
					return nil, fmt.Errorf("face with %d corners in object %q", len(refs), object.Name)
				}
				corners := make([]uint32, len(refs))
				for i, ref := range refs {
					if corners[i], err = corner(ref); err != nil {
						return nil, fmt.Errorf("object %q: %w", object.Name, err)
					}
				}
				for i := 1; i+1 < len(corners); i++ {
					m.Indices = append(m.Indices, corners[0], corners[i], corners[i+1])
				}
			}
		}
	}

	if len(m.Indices) == 0 {
		return nil, fmt.Errorf("model has no faces")
	}
	return m, nil
}
