package assets

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"cadcore/internal/scene"
	"cadcore/pkg/domain"
)

// Bounds computes the local-space bounding box of an asset. Formats without a
// cheap geometric reading (IFC, DWG) return an empty box.
func Bounds(format domain.ModelType, data []byte) (scene.Box, error) {
	switch format {
	case domain.ModelGLB:
		doc, err := glbJSON(data)
		if err != nil {
			return scene.Box{}, err
		}
		return gltfBounds(doc)
	case domain.ModelGLTF:
		return gltfBounds(data)
	case domain.ModelOBJ:
		return objBounds(data)
	case domain.ModelSTL:
		if bytes.HasPrefix(data, []byte("solid ")) && bytes.Contains(head(data), []byte("facet")) {
			return asciiSTLBounds(data)
		}
		return binarySTLBounds(data)
	}
	return scene.Box{}, nil
}

const (
	glbMagic     = 0x46546C67 // "glTF"
	glbChunkJSON = 0x4E4F534A // "JSON"
)

func glbJSON(data []byte) ([]byte, error) {
	if len(data) < 20 || binary.LittleEndian.Uint32(data[0:4]) != glbMagic {
		return nil, errors.New("glb: bad header")
	}
	n := binary.LittleEndian.Uint32(data[12:16])
	if binary.LittleEndian.Uint32(data[16:20]) != glbChunkJSON {
		return nil, errors.New("glb: first chunk is not JSON")
	}
	if uint64(n)+20 > uint64(len(data)) {
		return nil, errors.New("glb: truncated JSON chunk")
	}
	return data[20 : 20+n], nil
}

type gltfDoc struct {
	Accessors []struct {
		Min []float64 `json:"min"`
		Max []float64 `json:"max"`
	} `json:"accessors"`
	Meshes []struct {
		Primitives []struct {
			Attributes map[string]int `json:"attributes"`
		} `json:"primitives"`
	} `json:"meshes"`
}

// gltfBounds unions the POSITION accessor ranges of every primitive. Node
// transforms are not applied.
func gltfBounds(raw []byte) (scene.Box, error) {
	var doc gltfDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return scene.Box{}, fmt.Errorf("gltf: %w", err)
	}
	var box scene.Box
	for _, mesh := range doc.Meshes {
		for _, prim := range mesh.Primitives {
			idx, ok := prim.Attributes["POSITION"]
			if !ok || idx < 0 || idx >= len(doc.Accessors) {
				continue
			}
			acc := doc.Accessors[idx]
			if len(acc.Min) != 3 || len(acc.Max) != 3 {
				continue
			}
			box = box.Extend(domain.Vec3{acc.Min[0], acc.Min[1], acc.Min[2]})
			box = box.Extend(domain.Vec3{acc.Max[0], acc.Max[1], acc.Max[2]})
		}
	}
	return box, nil
}

func objBounds(data []byte) (scene.Box, error) {
	return scanVertices(data, "v")
}

func asciiSTLBounds(data []byte) (scene.Box, error) {
	return scanVertices(data, "vertex")
}

// scanVertices extends a box with every "<keyword> x y z" line.
func scanVertices(data []byte, keyword string) (scene.Box, error) {
	var box scene.Box
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || fields[0] != keyword {
			continue
		}
		var p domain.Vec3
		for i := range 3 {
			f, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return scene.Box{}, fmt.Errorf("line %d: %w", line, err)
			}
			p[i] = f
		}
		box = box.Extend(p)
	}
	return box, sc.Err()
}

func binarySTLBounds(data []byte) (scene.Box, error) {
	if len(data) < 84 {
		return scene.Box{}, errors.New("stl: truncated header")
	}
	n := int(binary.LittleEndian.Uint32(data[80:84]))
	if len(data) < 84+n*50 {
		return scene.Box{}, fmt.Errorf("stl: %d triangles declared, data truncated", n)
	}
	var box scene.Box
	for t := range n {
		tri := data[84+t*50:]
		for v := range 3 {
			off := 12 + v*12
			var p domain.Vec3
			for i := range 3 {
				p[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(tri[off+i*4:])))
			}
			box = box.Extend(p)
		}
	}
	return box, nil
}
