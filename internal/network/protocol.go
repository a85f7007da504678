package network

import (
	"encoding/json"
	"time"

	"terrainstream/internal/mesh"
	"terrainstream/internal/vegetation"
)

type MessageType string

const (
	MessageHello       MessageType = "hello"
	MessageKeepAlive   MessageType = "keepAlive"
	MessageBlockMesh   MessageType = "blockMesh"
	MessageVegetation  MessageType = "vegetation"
	MessageRelease     MessageType = "release"
	MessageTickSummary MessageType = "tickSummary"
	MessagePosition    MessageType = "position"
)

type Envelope struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Seq       uint64          `json:"seq"`
	Payload   json.RawMessage `json:"payload"`
}

type Hello struct {
	ServerID        string     `json:"serverId"`
	ViewerID        string     `json:"viewerId"`
	BlockCount      [3]int     `json:"blockCount"`
	BlockDimensions [3]float32 `json:"blockDimensions"`
	Center          [3]float32 `json:"center"`
}

type KeepAlive struct {
	ServerID string    `json:"serverId"`
	Time     time.Time `json:"time"`
}

// BlockMesh carries one uploaded block mesh. Positions and Normals are
// flattened xyz triples.
type BlockMesh struct {
	Handle    string     `json:"handle"`
	Slot      int        `json:"slot"`
	LOD       int        `json:"lod"`
	Origin    [3]float32 `json:"origin"`
	Positions []float32  `json:"positions"`
	Normals   []float32  `json:"normals"`
	Indices   []uint32   `json:"indices"`
}

// Vegetation carries one instance buffer as column-major model matrices.
type Vegetation struct {
	Handle     string        `json:"handle"`
	Slot       int           `json:"slot"`
	LOD        int           `json:"lod"`
	Type       string        `json:"type"`
	Mesh       string        `json:"mesh,omitempty"`
	Transforms [][16]float32 `json:"transforms"`
}

type Release struct {
	Handle string `json:"handle"`
}

type TickSummary struct {
	Tick      uint64     `json:"tick"`
	Center    [3]float32 `json:"center"`
	Shifts    int        `json:"shifts"`
	Generated int        `json:"generated"`
	Empty     int        `json:"empty"`
	Pending   int        `json:"pending"`
	Released  int        `json:"released"`
	Uploaded  int        `json:"uploaded"`
	Meshes    int        `json:"meshes"`
	Triangles int        `json:"triangles"`
	ElapsedMS float64    `json:"elapsedMs"`
}

// Position moves the viewer's reference point.
type Position struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

func NewBlockMesh(handle string, slot, lod int, origin [3]float32, m *mesh.VertexData) BlockMesh {
	out := BlockMesh{
		Handle:    handle,
		Slot:      slot,
		LOD:       lod,
		Origin:    origin,
		Positions: make([]float32, 0, len(m.Positions)*3),
		Normals:   make([]float32, 0, len(m.Normals)*3),
		Indices:   append([]uint32(nil), m.Indices...),
	}
	for _, p := range m.Positions {
		out.Positions = append(out.Positions, p[0], p[1], p[2])
	}
	for _, n := range m.Normals {
		out.Normals = append(out.Normals, n[0], n[1], n[2])
	}
	return out
}

func NewVegetation(handle string, slot, lod int, typ, meshRef string, in *vegetation.Instances) Vegetation {
	out := Vegetation{
		Handle:     handle,
		Slot:       slot,
		LOD:        lod,
		Type:       typ,
		Mesh:       meshRef,
		Transforms: make([][16]float32, 0, len(in.Items)),
	}
	for _, inst := range in.Items {
		out.Transforms = append(out.Transforms, [16]float32(inst.Matrix()))
	}
	return out
}

func Encode(msg Envelope) ([]byte, error) {
	return json.Marshal(msg)
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return []byte("null"), nil
	case []byte:
		return p, nil
	default:
		return json.Marshal(payload)
	}
}
