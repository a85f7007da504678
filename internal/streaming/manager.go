package streaming

import (
	"context"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/go-gl/mathgl/mgl32"

	"terrainstream/internal/config"
	"terrainstream/internal/density"
	"terrainstream/internal/marching"
	"terrainstream/internal/mesh"
	"terrainstream/internal/meshstore"
	"terrainstream/internal/skirt"
	"terrainstream/internal/vegetation"
)

// Options tunes block generation.
type Options struct {
	Threshold  float32
	SkirtDepth float32
	SkirtFaces []skirt.Face
	// MaxBlocksPerTick caps generation per tick; zero generates every queued
	// block.
	MaxBlocksPerTick int
	Workers          int
	Vegetation       []vegetation.Type
	Logger           *log.Logger
}

func OptionsFromConfig(cfg config.Config) (Options, error) {
	var faces []skirt.Face
	if cfg.Terrain.SkirtDepth > 0 {
		var err error
		faces, err = skirt.ParseFaces(cfg.Terrain.SkirtFaces)
		if err != nil {
			return Options{}, err
		}
	}
	return Options{
		Threshold:        float32(cfg.Terrain.Threshold),
		SkirtDepth:       float32(cfg.Terrain.SkirtDepth),
		SkirtFaces:       faces,
		MaxBlocksPerTick: cfg.Server.MaxBlocksPerTick,
		Workers:          cfg.Server.Workers,
		Vegetation:       vegetation.TypesFromConfig(cfg.Vegetation),
	}, nil
}

// Manager drives a State: it shifts the grid after the reference point,
// generates queued blocks on a worker pool and keeps the mesh store in step.
type Manager struct {
	mu      sync.Mutex
	state   *State
	sampler density.Sampler
	store   meshstore.Store
	placer  *vegetation.Placer
	opts    Options
	logger  *log.Logger

	pool       pond.Pool
	workspaces sync.Pool
	tick       uint64
}

// workspace is the per-goroutine scratch space of one block generation.
type workspace struct {
	grid      density.Grid
	extractor *marching.Extractor
	skirt     *skirt.Builder
	buffer    *mesh.VertexData
}

func NewManager(state *State, sampler density.Sampler, store meshstore.Store, opts Options) *Manager {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "terrain ", log.LstdFlags|log.Lmicroseconds)
	}
	m := &Manager{
		state:   state,
		sampler: sampler,
		store:   store,
		placer:  vegetation.NewPlacer(),
		opts:    opts,
		logger:  logger,
		pool:    pond.NewPool(workers),
	}
	m.workspaces.New = func() any {
		return &workspace{
			extractor: marching.NewExtractor(opts.Threshold),
			skirt:     skirt.NewBuilder(opts.Threshold, opts.SkirtDepth, opts.SkirtFaces),
			buffer:    mesh.NewVertexData(4096),
		}
	}
	return m
}

// Close waits for in-flight generation and stops the worker pool.
func (m *Manager) Close() {
	m.pool.StopAndWait()
}

// State exposes the streamed grid. Callers must not use it while a tick is
// running.
func (m *Manager) State() *State {
	return m.state
}

// Snapshot returns the current display list.
func (m *Manager) Snapshot() Display {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ExtractDisplayMeshes()
}

// TickReport describes one call to Tick.
type TickReport struct {
	Tick      uint64
	Shifts    int
	Mapping   MappingStats
	Released  int
	Generated GenerationStats
	Uploaded  int
	Pending   int
	Elapsed   time.Duration
	Display   Display
}

// Tick brings the grid up to date with position: it shifts while the point
// is farther than the update distance from the center block, releases
// evicted resources, generates queued blocks, uploads what became visible
// and returns the display list. A cancelled context stops new blocks from
// being started; blocks already started always finish.
func (m *Manager) Tick(ctx context.Context, position mgl32.Vec3) (TickReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	m.tick++
	report := TickReport{Tick: m.tick}
	s := m.state

	if position.Sub(s.RealCenter).Len() > s.UpdateDistance {
		limit := 1
		for _, c := range s.BlockCount {
			if c > limit {
				limit = c
			}
		}
		for i := 0; i <= limit; i++ {
			mapping := s.CalculateTerrainShiftMapping(position)
			if mapping == nil {
				break
			}
			stats := s.ApplyBlockMapping(mapping)
			report.Shifts++
			report.Mapping.Shifted += stats.Shifted
			report.Mapping.Evicted += stats.Evicted
			report.Mapping.Incident += stats.Incident
			report.Mapping.Queued += stats.Queued
			m.logger.Printf("terrain shift %v: %d kept, %d evicted, %d queued", mapping.Shift, stats.Shifted, stats.Evicted, stats.Queued)
		}
	}

	report.Released = m.releaseQueued()
	report.Generated = m.generate(ctx, m.opts.MaxBlocksPerTick)
	report.Released += m.releaseQueued()
	report.Uploaded = m.uploadVisible()
	report.Pending = len(s.pending)
	report.Display = s.ExtractDisplayMeshes()
	report.Elapsed = time.Since(start)

	if report.Generated.Blocks > 0 {
		m.logger.Printf("tick %d generated %d/%d blocks (%d empty) in %s",
			report.Tick, report.Generated.Blocks, report.Generated.Blocks+report.Pending, report.Generated.Empty, report.Elapsed)
	}
	return report, ctx.Err()
}

// GenerationStats counts the blocks finished by one generation pass.
type GenerationStats struct {
	Blocks    int
	Empty     int
	Vertices  int
	Instances int
}

// GenerateNewLODMeshes generates up to limit queued slots at their current
// level; zero or less drains the queue. Slots not reached stay queued.
func (m *Manager) GenerateNewLODMeshes(ctx context.Context, limit int) GenerationStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generate(ctx, limit)
}

type blockJob struct {
	slot   int
	record int
	lod    int
	origin mgl32.Vec3
	// reuse is set when the level's mesh already exists and only the
	// vegetation needs placing.
	reuse    *mesh.VertexData
	interior int
}

type blockResult struct {
	job        blockJob
	mesh       *mesh.VertexData
	interior   int
	empty      bool
	vegetation []*vegetation.Instances
}

func (m *Manager) generate(ctx context.Context, limit int) GenerationStats {
	var stats GenerationStats
	s := m.state
	slots := s.takePending(limit)
	if len(slots) == 0 {
		return stats
	}

	results := make([]blockResult, len(slots))
	var wg sync.WaitGroup
	submitted := 0
	for i, slot := range slots {
		if ctx.Err() != nil {
			for _, rest := range slots[i:] {
				s.queue(rest)
			}
			break
		}
		rec := s.BlockDataIndices[slot]
		lod := s.LODLevels[slot]
		job := blockJob{
			slot:     slot,
			record:   rec,
			lod:      lod,
			origin:   s.SlotOrigin(slot),
			reuse:    s.Records[rec].Meshes[lod],
			interior: s.Records[rec].InteriorIndices[lod],
		}
		wg.Add(1)
		submitted++
		m.pool.Submit(func() {
			defer wg.Done()
			results[i] = m.buildBlock(job)
		})
	}
	wg.Wait()

	for _, res := range results[:submitted] {
		m.applyResult(res)
		stats.Blocks++
		if res.empty {
			stats.Empty++
			continue
		}
		stats.Vertices += res.mesh.VertexCount()
		for _, in := range res.vegetation {
			if in != nil {
				stats.Instances += len(in.Items)
			}
		}
	}
	return stats
}

// buildBlock runs on a pool worker. It reads only immutable state and writes
// only its own result.
func (m *Manager) buildBlock(job blockJob) blockResult {
	res := blockResult{job: job}
	if job.reuse != nil {
		res.mesh = job.reuse
		res.interior = job.interior
	} else {
		ws := m.workspaces.Get().(*workspace)
		defer m.workspaces.Put(ws)

		params := m.state.LODParams[job.lod]
		density.SampleGrid(m.sampler, job.origin, params.CubeScale, params.CubeCount, &ws.grid)
		ws.buffer.Reset()
		if ws.extractor.Extract(&ws.grid, ws.buffer) == 0 {
			res.empty = true
			return res
		}
		res.interior = len(ws.buffer.Indices)
		ws.skirt.Build(&ws.grid, ws.buffer)
		res.mesh = ws.buffer.Clone()
	}

	if len(m.opts.Vegetation) == 0 {
		return res
	}
	surface := &mesh.VertexData{
		Positions: res.mesh.Positions,
		Normals:   res.mesh.Normals,
		Indices:   res.mesh.Indices[:res.interior],
	}
	footprint := m.state.Footprint()
	res.vegetation = make([]*vegetation.Instances, len(m.opts.Vegetation))
	for t, typ := range m.opts.Vegetation {
		placed := m.placer.Place(surface, typ, job.lod, footprint)
		res.vegetation[t] = &placed
	}
	return res
}

func (m *Manager) applyResult(res blockResult) {
	s := m.state
	r := &s.Records[res.job.record]
	lod := res.job.lod
	if res.empty {
		r.Meshes[lod] = nil
		r.InteriorIndices[lod] = 0
		r.Empty[lod] = true
	} else {
		r.Meshes[lod] = res.mesh
		r.InteriorIndices[lod] = res.interior
		r.Empty[lod] = false
	}
	s.dropVegetation(r)
	for t := range r.Vegetation {
		if t < len(res.vegetation) {
			r.Vegetation[t] = res.vegetation[t]
		}
	}
	r.VegetationLOD = lod
}

func (m *Manager) releaseQueued() int {
	handles := m.state.takeReleases()
	if len(handles) == 0 {
		return 0
	}
	if err := meshstore.ReleaseAll(m.store, handles); err != nil {
		m.logger.Printf("release resources: %v", err)
	}
	return len(handles)
}

// uploadVisible uploads every mesh and vegetation buffer shown at a slot's
// current level that has no handle yet. Failed uploads are logged and
// retried on the next tick.
func (m *Manager) uploadVisible() int {
	s := m.state
	uploaded := 0
	for slot, rec := range s.BlockDataIndices {
		r := &s.Records[rec]
		lod := s.LODLevels[slot]
		if data := r.Meshes[lod]; data != nil && r.Handles[lod] == "" {
			h, err := m.store.UploadMesh(meshstore.MeshInfo{Slot: slot, LOD: lod, Origin: s.SlotOrigin(slot)}, data)
			if err != nil {
				m.logger.Printf("upload mesh for slot %d lod %d: %v", slot, lod, err)
			} else {
				r.Handles[lod] = h
				uploaded++
			}
		}
		if r.VegetationLOD != lod {
			continue
		}
		for t, in := range r.Vegetation {
			if t >= len(m.opts.Vegetation) {
				break
			}
			if in.Empty() || r.VegetationHandles[t] != "" {
				continue
			}
			typ := m.opts.Vegetation[t]
			info := meshstore.InstanceInfo{Slot: slot, LOD: lod, Type: typ.Name, Mesh: typ.Mesh}
			h, err := m.store.UploadInstances(info, in)
			if err != nil {
				m.logger.Printf("upload %s instances for slot %d: %v", typ.Name, slot, err)
				continue
			}
			r.VegetationHandles[t] = h
			uploaded++
		}
	}
	return uploaded
}
