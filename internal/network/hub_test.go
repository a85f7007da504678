package network

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorilla/websocket"

	"terrainstream/internal/config"
	"terrainstream/internal/mesh"
	"terrainstream/internal/meshstore"
	"terrainstream/internal/vegetation"
)

func testHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub(config.NetworkConfig{WriteTimeout: config.Duration(time.Second)}, nil)
	hub.OnConnect(func(viewer string) {
		if err := hub.Send(viewer, MessageHello, Hello{ServerID: "test", ViewerID: viewer}); err != nil {
			t.Errorf("send hello: %v", err)
		}
	})
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	env := readEnvelope(t, conn)
	if env.Type != MessageHello {
		t.Fatalf("expected hello first, got %s", env.Type)
	}
	var hello Hello
	if err := json.Unmarshal(env.Payload, &hello); err != nil {
		t.Fatalf("decode hello: %v", err)
	}
	if hello.ServerID != "test" || hello.ViewerID == "" {
		t.Fatalf("unexpected hello %+v", hello)
	}
	return hub, conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	env, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func TestHubDispatchesViewerMessages(t *testing.T) {
	hub, conn := testHub(t)
	got := make(chan Position, 1)
	hub.Register(MessagePosition, func(ctx context.Context, viewer string, env Envelope) {
		var p Position
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			t.Errorf("decode position: %v", err)
			return
		}
		got <- p
	})

	raw, _ := json.Marshal(Position{X: 1, Y: 2, Z: 3})
	data, _ := Encode(Envelope{Type: MessagePosition, Timestamp: time.Now(), Payload: raw})
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case p := <-got:
		if p != (Position{X: 1, Y: 2, Z: 3}) {
			t.Fatalf("unexpected position %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("position handler was not called")
	}
}

func TestBroadcasterMirrorsStore(t *testing.T) {
	hub, conn := testHub(t)
	store := meshstore.NewMemory()
	b := NewBroadcaster(store, hub, nil)

	m := mesh.NewVertexData(3)
	up := mgl32.Vec3{0, 1, 0}
	m.AddTriangle(m.AddVertex(mgl32.Vec3{0, 0, 0}, up), m.AddVertex(mgl32.Vec3{0, 0, 1}, up), m.AddVertex(mgl32.Vec3{1, 0, 0}, up))
	h, err := b.UploadMesh(meshstore.MeshInfo{Slot: 4, LOD: 1, Origin: mgl32.Vec3{16, 0, 32}}, m)
	if err != nil {
		t.Fatalf("upload mesh: %v", err)
	}

	env := readEnvelope(t, conn)
	if env.Type != MessageBlockMesh {
		t.Fatalf("expected blockMesh, got %s", env.Type)
	}
	var bm BlockMesh
	if err := json.Unmarshal(env.Payload, &bm); err != nil {
		t.Fatalf("decode block mesh: %v", err)
	}
	if bm.Handle != string(h) || bm.Slot != 4 || bm.LOD != 1 || bm.Origin != [3]float32{16, 0, 32} {
		t.Fatalf("unexpected block mesh header %+v", bm)
	}
	if len(bm.Positions) != 9 || len(bm.Normals) != 9 || len(bm.Indices) != 3 {
		t.Fatalf("unexpected block mesh sizes %d/%d/%d", len(bm.Positions), len(bm.Normals), len(bm.Indices))
	}

	in := &vegetation.Instances{Items: []vegetation.Instance{{Position: mgl32.Vec3{1, 2, 3}, Rotation: mgl32.QuatIdent()}}}
	vh, err := b.UploadInstances(meshstore.InstanceInfo{Slot: 4, LOD: 1, Type: "grass"}, in)
	if err != nil {
		t.Fatalf("upload instances: %v", err)
	}
	env = readEnvelope(t, conn)
	var veg Vegetation
	if err := json.Unmarshal(env.Payload, &veg); err != nil {
		t.Fatalf("decode vegetation: %v", err)
	}
	if env.Type != MessageVegetation || veg.Handle != string(vh) || len(veg.Transforms) != 1 {
		t.Fatalf("unexpected vegetation message %s %+v", env.Type, veg)
	}
	if tr := veg.Transforms[0]; tr[12] != 1 || tr[13] != 2 || tr[14] != 3 {
		t.Fatalf("translation missing from transform %v", tr)
	}

	if err := b.Release(h); err != nil {
		t.Fatalf("release: %v", err)
	}
	env = readEnvelope(t, conn)
	var rel Release
	if err := json.Unmarshal(env.Payload, &rel); err != nil {
		t.Fatalf("decode release: %v", err)
	}
	if env.Type != MessageRelease || rel.Handle != string(h) {
		t.Fatalf("unexpected release message %s %+v", env.Type, rel)
	}

	if err := b.Release(h); err == nil {
		t.Fatalf("expected releasing twice to fail")
	}
	if stats := store.Stats(); stats.Meshes != 0 || stats.Instances != 1 {
		t.Fatalf("unexpected store contents %+v", stats)
	}
}
