// Package server wires terrain streaming to its viewers: it ticks the
// streaming manager at a fixed rate, follows the reference point the viewers
// report and mirrors every mesh upload and release over websockets.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"terrainstream/internal/config"
	"terrainstream/internal/density"
	"terrainstream/internal/meshstore"
	"terrainstream/internal/network"
	"terrainstream/internal/preview"
	"terrainstream/internal/streaming"
)

const previewScale = 2

type Server struct {
	cfg     *config.Config
	manager *streaming.Manager
	store   *meshstore.Memory
	hub     *network.Hub
	logger  *log.Logger

	mu       sync.Mutex
	position mgl32.Vec3
	center   mgl32.Vec3
}

func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	logger := log.New(log.Writer(), "terrain-server ", log.LstdFlags|log.Lmicroseconds)

	state, err := streaming.NewState(streaming.ParamsFromConfig(cfg.Terrain, len(cfg.Vegetation)))
	if err != nil {
		return nil, fmt.Errorf("create terrain state: %w", err)
	}
	opts, err := streaming.OptionsFromConfig(*cfg)
	if err != nil {
		return nil, fmt.Errorf("terrain options: %w", err)
	}
	opts.Logger = log.New(log.Writer(), "terrain ", log.LstdFlags|log.Lmicroseconds)

	store := meshstore.NewMemory()
	var sink meshstore.Store = store
	var hub *network.Hub
	if cfg.Network.Listen != "" {
		hub = network.NewHub(cfg.Network, nil)
		sink = network.NewBroadcaster(store, hub, nil)
	}

	srv := &Server{
		cfg:      cfg,
		manager:  streaming.NewManager(state, density.NewNoiseSampler(cfg.Density), sink, opts),
		store:    store,
		hub:      hub,
		logger:   logger,
		position: state.RealCenter,
		center:   state.RealCenter,
	}
	if hub != nil {
		hub.Register(network.MessagePosition, srv.onPosition)
		hub.OnConnect(srv.onConnect)
	}
	return srv, nil
}

func (s *Server) Run(ctx context.Context) error {
	defer s.manager.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var httpSrv *http.Server
	if s.hub != nil {
		mux := http.NewServeMux()
		mux.Handle(s.cfg.Network.Path, s.hub)
		httpSrv = &http.Server{Addr: s.cfg.Network.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			s.logger.Printf("serving viewers on %s%s", s.cfg.Network.Listen, s.cfg.Network.Path)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Printf("viewer server stopped: %v", err)
				cancel()
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				s.logger.Printf("shutdown viewer server: %v", err)
			}
		}()
	}

	ticker := time.NewTicker(s.cfg.Server.TickRate.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Step(ctx); err != nil && ctx.Err() == nil {
				s.logger.Printf("terrain tick: %v", err)
			}
		}
	}
}

// Step runs one terrain tick at the latest reported position, publishes its
// summary and writes a preview when one is due.
func (s *Server) Step(ctx context.Context) (streaming.TickReport, error) {
	s.mu.Lock()
	position := s.position
	s.mu.Unlock()

	report, err := s.manager.Tick(ctx, position)
	if err != nil {
		return report, err
	}

	s.mu.Lock()
	s.center = s.manager.State().RealCenter
	center := s.center
	s.mu.Unlock()

	if s.hub != nil {
		summary := network.TickSummary{
			Tick:      report.Tick,
			Center:    [3]float32(center),
			Shifts:    report.Shifts,
			Generated: report.Generated.Blocks,
			Empty:     report.Generated.Empty,
			Pending:   report.Pending,
			Released:  report.Released,
			Uploaded:  report.Uploaded,
			Meshes:    len(report.Display.Meshes),
			Triangles: report.Display.TriangleCount(),
			ElapsedMS: float64(report.Elapsed.Microseconds()) / 1000,
		}
		if err := s.hub.Broadcast(network.MessageTickSummary, summary); err != nil {
			s.logger.Printf("broadcast tick summary: %v", err)
		}
	}

	if dir := s.cfg.Server.PreviewDir; dir != "" && report.Tick%uint64(s.cfg.Server.PreviewEvery) == 0 {
		if path, err := preview.Save(report.Display, previewScale, dir, report.Tick); err != nil {
			s.logger.Printf("write preview: %v", err)
		} else {
			s.logger.Printf("wrote preview %s", path)
		}
	}
	return report, nil
}

// SetPosition moves the reference point used by the next tick.
func (s *Server) SetPosition(p mgl32.Vec3) {
	s.mu.Lock()
	s.position = p
	s.mu.Unlock()
}

// Store exposes the uploaded geometry.
func (s *Server) Store() *meshstore.Memory {
	return s.store
}

func (s *Server) onPosition(ctx context.Context, viewer string, env network.Envelope) {
	var p network.Position
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.logger.Printf("decode position from viewer %s: %v", viewer, err)
		return
	}
	s.SetPosition(mgl32.Vec3{p.X, p.Y, p.Z})
}

// onConnect greets a viewer and replays everything currently displayed so it
// does not wait for the next uploads.
func (s *Server) onConnect(viewer string) {
	s.mu.Lock()
	center := s.center
	s.mu.Unlock()

	terrain := s.cfg.Terrain
	hello := network.Hello{
		ServerID:   s.cfg.Server.ID,
		ViewerID:   viewer,
		BlockCount: [3]int(terrain.BlockCount),
		BlockDimensions: [3]float32{
			float32(terrain.BlockDimensions[0]),
			float32(terrain.BlockDimensions[1]),
			float32(terrain.BlockDimensions[2]),
		},
		Center: [3]float32(center),
	}
	if err := s.hub.Send(viewer, network.MessageHello, hello); err != nil {
		s.logger.Printf("send hello to viewer %s: %v", viewer, err)
		return
	}

	display := s.manager.Snapshot()
	for _, dm := range display.Meshes {
		if dm.Handle == "" {
			continue
		}
		msg := network.NewBlockMesh(string(dm.Handle), dm.Slot, dm.LOD, [3]float32(dm.Origin), dm.Mesh)
		if err := s.hub.Send(viewer, network.MessageBlockMesh, msg); err != nil {
			s.logger.Printf("replay mesh to viewer %s: %v", viewer, err)
			return
		}
	}
	for _, veg := range display.Vegetation {
		if veg.Handle == "" || veg.Type >= len(s.cfg.Vegetation) {
			continue
		}
		typ := s.cfg.Vegetation[veg.Type]
		lod := s.manager.State().LODLevels[veg.Slot]
		msg := network.NewVegetation(string(veg.Handle), veg.Slot, lod, typ.Name, typ.Mesh, veg.Instances)
		if err := s.hub.Send(viewer, network.MessageVegetation, msg); err != nil {
			s.logger.Printf("replay vegetation to viewer %s: %v", viewer, err)
			return
		}
	}
}
