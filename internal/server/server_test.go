package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorilla/websocket"

	"terrainstream/internal/config"
	"terrainstream/internal/network"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Workers = 2
	cfg.Server.PreviewDir = filepath.Join(t.TempDir(), "previews")
	cfg.Server.PreviewEvery = 1
	cfg.Terrain.BlockCount = config.Count3{3, 1, 3}
	cfg.Terrain.BlockDimensions = config.Vector3{16, 16, 16}
	cfg.Terrain.BaseCubeCount = config.Count3{8, 8, 8}
	cfg.Terrain.LODDistances = []float64{20}
	cfg.Density.Amplitude = 4
	for i := range cfg.Vegetation {
		cfg.Vegetation[i].Densities = cfg.Vegetation[i].Densities[:2]
	}
	cfg.Network.Listen = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return cfg
}

func TestStepGeneratesAndWritesPreview(t *testing.T) {
	cfg := testConfig(t)
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(srv.manager.Close)

	report, err := srv.Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if report.Generated.Blocks != 9 || report.Pending != 0 {
		t.Fatalf("expected every block generated, got %+v pending %d", report.Generated, report.Pending)
	}
	if stats := srv.Store().Stats(); stats.Meshes != len(report.Display.Meshes) {
		t.Fatalf("store holds %d meshes, display shows %d", stats.Meshes, len(report.Display.Meshes))
	}
	if _, err := os.Stat(filepath.Join(cfg.Server.PreviewDir, "tick_000001.png")); err != nil {
		t.Fatalf("expected a preview: %v", err)
	}
}

func TestViewerPositionDrivesShift(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.PreviewDir = ""
	cfg.Network.Listen = "127.0.0.1:0"
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(srv.manager.Close)
	ctx := context.Background()
	if _, err := srv.Step(ctx); err != nil {
		t.Fatalf("first step: %v", err)
	}

	ts := httptest.NewServer(srv.hub)
	t.Cleanup(ts.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read hello: %v", err)
	}
	env, err := network.Decode(data)
	if err != nil || env.Type != network.MessageHello {
		t.Fatalf("expected hello, got %s (%v)", env.Type, err)
	}
	var hello network.Hello
	if err := json.Unmarshal(env.Payload, &hello); err != nil {
		t.Fatalf("decode hello: %v", err)
	}
	if hello.BlockCount != [3]int{3, 1, 3} || hello.ServerID != cfg.Server.ID {
		t.Fatalf("unexpected hello %+v", hello)
	}

	raw, _ := json.Marshal(network.Position{X: 16})
	msg, _ := network.Encode(network.Envelope{Type: network.MessagePosition, Timestamp: time.Now(), Payload: raw})
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		t.Fatalf("write position: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		srv.mu.Lock()
		p := srv.position
		srv.mu.Unlock()
		if p == (mgl32.Vec3{16, 0, 0}) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("position never applied, still %v", p)
		}
		time.Sleep(10 * time.Millisecond)
	}

	report, err := srv.Step(ctx)
	if err != nil {
		t.Fatalf("second step: %v", err)
	}
	if report.Shifts != 1 {
		t.Fatalf("expected one shift, got %d", report.Shifts)
	}
	if got := srv.manager.State().RealCenter; got != (mgl32.Vec3{16, 0, 0}) {
		t.Fatalf("center did not follow the viewer: %v", got)
	}
}
