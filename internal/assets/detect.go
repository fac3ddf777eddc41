package assets

import (
	"bytes"
	"path"
	"strings"

	"github.com/h2non/filetype"

	"cadcore/pkg/domain"
)

var (
	glbType  = filetype.NewType("glb", "model/gltf-binary")
	gltfType = filetype.NewType("gltf", "model/gltf+json")
	stlType  = filetype.NewType("stl", "model/stl")
	ifcType  = filetype.NewType("ifc", "application/x-step")
	dwgType  = filetype.NewType("dwg", "image/vnd.dwg")
)

func init() {
	filetype.AddMatcher(glbType, func(b []byte) bool { return bytes.HasPrefix(b, []byte("glTF")) })
	filetype.AddMatcher(ifcType, func(b []byte) bool { return bytes.HasPrefix(b, []byte("ISO-10303-21")) })
	filetype.AddMatcher(dwgType, func(b []byte) bool { return len(b) >= 6 && bytes.HasPrefix(b, []byte("AC10")) })
	filetype.AddMatcher(stlType, func(b []byte) bool {
		return bytes.HasPrefix(b, []byte("solid ")) && bytes.Contains(head(b), []byte("facet"))
	})
	filetype.AddMatcher(gltfType, func(b []byte) bool {
		t := bytes.TrimLeft(head(b), " \t\r\n")
		return bytes.HasPrefix(t, []byte("{")) && bytes.Contains(t, []byte(`"asset"`))
	})
}

func head(b []byte) []byte {
	if len(b) > 1024 {
		return b[:1024]
	}
	return b
}

var byExtension = map[string]struct {
	format      domain.ModelType
	contentType string
}{
	".glb":  {domain.ModelGLB, "model/gltf-binary"},
	".gltf": {domain.ModelGLTF, "model/gltf+json"},
	".obj":  {domain.ModelOBJ, "model/obj"},
	".stl":  {domain.ModelSTL, "model/stl"},
	".ifc":  {domain.ModelIFC, "application/x-step"},
	".dwg":  {domain.ModelDWG, "image/vnd.dwg"},
}

// Detect returns the model format and MIME type of an asset. Recognised
// content wins over the key's extension; unrecognised content falls back to
// the extension and then to generic sniffing.
func Detect(key string, data []byte) (domain.ModelType, string) {
	kind, err := filetype.Match(data)
	if err == nil && kind != filetype.Unknown {
		for _, v := range byExtension {
			if v.contentType == kind.MIME.Value {
				return v.format, v.contentType
			}
		}
	}
	if v, ok := byExtension[strings.ToLower(path.Ext(key))]; ok {
		return v.format, v.contentType
	}
	if err == nil && kind != filetype.Unknown {
		return domain.ModelOther, kind.MIME.Value
	}
	return domain.ModelOther, "application/octet-stream"
}
