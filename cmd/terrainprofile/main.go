package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"terrainstream/internal/config"
	"terrainstream/internal/density"
	"terrainstream/internal/meshstore"
	"terrainstream/internal/preview"
	"terrainstream/internal/streaming"
)

type countingSampler struct {
	base    density.Sampler
	samples atomic.Int64
}

func (s *countingSampler) Sample(p mgl32.Vec3) density.Sample {
	s.samples.Add(1)
	return s.base.Sample(p)
}

func main() {
	var (
		cfgPath    = flag.String("config", "", "path to terrain configuration file")
		ticks      = flag.Int("ticks", 200, "number of ticks to simulate")
		speed      = flag.Float64("speed", 2, "reference point movement per tick in world units")
		dirX       = flag.Float64("dx", 1, "movement direction x")
		dirY       = flag.Float64("dy", 0, "movement direction y")
		dirZ       = flag.Float64("dz", 0.35, "movement direction z")
		workers    = flag.Int("workers", 0, "generation workers, 0 keeps the configured value")
		maxBlocks  = flag.Int("maxBlocks", -1, "blocks generated per tick, -1 keeps the configured value")
		previewDir = flag.String("preview", "", "write a preview of the final tick to this directory")
		verbose    = flag.Bool("v", false, "log every terrain shift and generation pass")
	)
	flag.Parse()

	if *ticks <= 0 {
		fmt.Fprintln(os.Stderr, "ticks must be positive")
		os.Exit(1)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *workers > 0 {
		cfg.Server.Workers = *workers
	}
	if *maxBlocks >= 0 {
		cfg.Server.MaxBlocksPerTick = *maxBlocks
	}

	state, err := streaming.NewState(streaming.ParamsFromConfig(cfg.Terrain, len(cfg.Vegetation)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "create terrain state: %v\n", err)
		os.Exit(1)
	}
	opts, err := streaming.OptionsFromConfig(*cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "terrain options: %v\n", err)
		os.Exit(1)
	}
	out := io.Discard
	if *verbose {
		out = os.Stderr
	}
	opts.Logger = log.New(out, "terrain ", log.Lmicroseconds)

	sampler := &countingSampler{base: density.NewNoiseSampler(cfg.Density)}
	store := meshstore.NewMemory()
	manager := streaming.NewManager(state, sampler, store, opts)
	defer manager.Close()

	direction := mgl32.Vec3{float32(*dirX), float32(*dirY), float32(*dirZ)}
	if direction.Len() == 0 {
		fmt.Fprintln(os.Stderr, "direction must not be zero")
		os.Exit(1)
	}
	step := direction.Normalize().Mul(float32(*speed))

	var (
		ctx        = context.Background()
		position   = state.RealCenter
		shifts     int
		blocks     int
		empty      int
		vertices   int
		instances  int
		slowest    time.Duration
		total      time.Duration
		maxPending int
		last       streaming.TickReport
	)
	for i := 0; i < *ticks; i++ {
		report, err := manager.Tick(ctx, position)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tick %d: %v\n", i, err)
			os.Exit(1)
		}
		shifts += report.Shifts
		blocks += report.Generated.Blocks
		empty += report.Generated.Empty
		vertices += report.Generated.Vertices
		instances += report.Generated.Instances
		total += report.Elapsed
		if report.Elapsed > slowest {
			slowest = report.Elapsed
		}
		if report.Pending > maxPending {
			maxPending = report.Pending
		}
		last = report
		position = position.Add(step)
	}
	if err := state.CheckInvariants(); err != nil {
		fmt.Fprintf(os.Stderr, "state invariants violated: %v\n", err)
		os.Exit(1)
	}

	stats := store.Stats()
	fmt.Printf("ticks:               %d\n", *ticks)
	fmt.Printf("final center:        %v\n", state.RealCenter)
	fmt.Printf("shifts:              %d\n", shifts)
	fmt.Printf("blocks generated:    %d (%d empty)\n", blocks, empty)
	fmt.Printf("vertices generated:  %d\n", vertices)
	fmt.Printf("instances placed:    %d\n", instances)
	fmt.Printf("density samples:     %d\n", sampler.samples.Load())
	fmt.Printf("max pending:         %d\n", maxPending)
	fmt.Printf("avg tick:            %s\n", total/time.Duration(*ticks))
	fmt.Printf("slowest tick:        %s\n", slowest)
	fmt.Printf("displayed meshes:    %d (%d triangles)\n", len(last.Display.Meshes), last.Display.TriangleCount())
	fmt.Printf("store:               %d meshes, %d instance buffers, %d uploads, %d releases\n",
		stats.Meshes, stats.Instances, stats.Uploads, stats.Releases)

	if *previewDir != "" {
		path, err := preview.Save(last.Display, 1, *previewDir, last.Tick)
		if err != nil {
			fmt.Fprintf(os.Stderr, "write preview: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("preview:             %s\n", path)
	}
}
