package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a JSON and YAML friendly wrapper around time.Duration that
// accepts human readable strings such as "150ms" in configuration files while
// still allowing numeric representations when necessary.
type Duration time.Duration

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalJSON encodes the duration using the canonical string representation.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON decodes a duration from either a string (e.g. "250ms") or a
// numeric value representing nanoseconds. Empty strings and null values decode
// to zero.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("duration: empty value")
	}
	if string(b) == "null" {
		*d = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("duration: decode string: %w", err)
		}
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Duration(time.Duration(n))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*d = Duration(time.Duration(f))
		return nil
	}
	return fmt.Errorf("duration: invalid value %s", string(b))
}

// MarshalYAML mirrors MarshalJSON so both encodings round trip.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration: expected scalar, got kind %d", node.Kind)
	}
	if tag := node.ShortTag(); tag == "!!int" || tag == "!!float" {
		var f float64
		if err := node.Decode(&f); err != nil {
			return fmt.Errorf("duration: decode number: %w", err)
		}
		*d = Duration(time.Duration(f))
		return nil
	}
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" || s == "null" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: parse %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Vector3 is a world-space vector in configuration files.
type Vector3 [3]float64

// Count3 is a per-axis integer count.
type Count3 [3]int

// Total returns the product of the three counts.
func (c Count3) Total() int {
	return c[0] * c[1] * c[2]
}

// Config captures the tunable parameters needed to bootstrap a terrain server.
type Config struct {
	Server     ServerConfig       `json:"server" yaml:"server"`
	Terrain    TerrainConfig      `json:"terrain" yaml:"terrain"`
	Density    DensityConfig      `json:"density" yaml:"density"`
	Vegetation []VegetationConfig `json:"vegetation" yaml:"vegetation"`
	Network    NetworkConfig      `json:"network" yaml:"network"`
}

type ServerConfig struct {
	ID               string   `json:"id" yaml:"id"`
	TickRate         Duration `json:"tickRate" yaml:"tickRate"`                 // terrain update cadence, e.g. "100ms"
	MaxBlocksPerTick int      `json:"maxBlocksPerTick" yaml:"maxBlocksPerTick"` // 0 generates every queued block
	Workers          int      `json:"workers" yaml:"workers"`                   // block generation workers, 0 = NumCPU
	PreviewDir       string   `json:"previewDir" yaml:"previewDir"`             // empty disables previews
	PreviewEvery     int      `json:"previewEvery" yaml:"previewEvery"`         // ticks between previews
}

type TerrainConfig struct {
	ReferenceCenter Vector3   `json:"referenceCenter" yaml:"referenceCenter"`
	BlockCount      Count3    `json:"blockCount" yaml:"blockCount"`
	BlockDimensions Vector3   `json:"blockDimensions" yaml:"blockDimensions"`
	BaseCubeCount   Count3    `json:"baseCubeCount" yaml:"baseCubeCount"`
	LODDistances    []float64 `json:"lodDistances" yaml:"lodDistances"` // strictly increasing
	UpdateDistance  float64   `json:"updateDistance" yaml:"updateDistance"`
	Threshold       float64   `json:"threshold" yaml:"threshold"`
	SkirtDepth      float64   `json:"skirtDepth" yaml:"skirtDepth"`
	SkirtFaces      []string  `json:"skirtFaces" yaml:"skirtFaces"` // subset of -x, +x, -z, +z
}

// LODCount is the number of detail levels implied by the distance thresholds.
func (t TerrainConfig) LODCount() int {
	return len(t.LODDistances) + 1
}

type DensityConfig struct {
	Seed          int64   `json:"seed" yaml:"seed"`
	Frequency     float64 `json:"frequency" yaml:"frequency"`
	Amplitude     float64 `json:"amplitude" yaml:"amplitude"`
	Octaves       int     `json:"octaves" yaml:"octaves"`
	Persistence   float64 `json:"persistence" yaml:"persistence"`
	Lacunarity    float64 `json:"lacunarity" yaml:"lacunarity"`
	SurfaceHeight float64 `json:"surfaceHeight" yaml:"surfaceHeight"`
	GradientStep  float64 `json:"gradientStep" yaml:"gradientStep"`
}

type VegetationConfig struct {
	Name       string    `json:"name" yaml:"name"`
	Mesh       string    `json:"mesh" yaml:"mesh"`           // source mesh reference, resolved by the renderer
	Densities  []float64 `json:"densities" yaml:"densities"` // instances per unit area, one per LOD
	BoundsMin  Vector3   `json:"boundsMin" yaml:"boundsMin"`
	BoundsMax  Vector3   `json:"boundsMax" yaml:"boundsMax"`
	SeedOffset uint32    `json:"seedOffset" yaml:"seedOffset"`
}

type NetworkConfig struct {
	Listen          string   `json:"listen" yaml:"listen"` // ":8080", empty disables the viewer stream
	Path            string   `json:"path" yaml:"path"`
	WriteTimeout    Duration `json:"writeTimeout" yaml:"writeTimeout"`
	PingInterval    Duration `json:"pingInterval" yaml:"pingInterval"`
	MaxMessageBytes int64    `json:"maxMessageBytes" yaml:"maxMessageBytes"`
}

// SkirtFaceNames lists the faces skirts may be built on.
var SkirtFaceNames = []string{"-x", "+x", "-z", "+z"}

// Load reads configuration from a JSON or YAML file if provided. An empty path
// returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ID:               "terrain-0",
			TickRate:         Duration(100 * time.Millisecond),
			MaxBlocksPerTick: 0,
			Workers:          0,
			PreviewEvery:     50,
		},
		Terrain: TerrainConfig{
			ReferenceCenter: Vector3{0, 0, 0},
			BlockCount:      Count3{7, 3, 7},
			BlockDimensions: Vector3{32, 32, 32},
			BaseCubeCount:   Count3{16, 16, 16},
			LODDistances:    []float64{48, 96},
			UpdateDistance:  8,
			Threshold:       0,
			SkirtDepth:      4,
			SkirtFaces:      []string{"-x", "+x", "-z", "+z"},
		},
		Density: DensityConfig{
			Seed:          1337,
			Frequency:     0.02,
			Amplitude:     12,
			Octaves:       4,
			Persistence:   0.45,
			Lacunarity:    2.0,
			SurfaceHeight: 0,
			GradientStep:  0.25,
		},
		Vegetation: []VegetationConfig{
			{
				Name:       "grass",
				Mesh:       "meshes/grass_tuft.obj",
				Densities:  []float64{0.1, 0.02, 0},
				BoundsMin:  Vector3{-0.5, 0, -0.5},
				BoundsMax:  Vector3{0.5, 0.8, 0.5},
				SeedOffset: 0x9e3779b9,
			},
			{
				Name:       "shrub",
				Mesh:       "meshes/shrub.obj",
				Densities:  []float64{0.01, 0.005, 0.001},
				BoundsMin:  Vector3{-1.2, 0, -1.2},
				BoundsMax:  Vector3{1.2, 2, 1.2},
				SeedOffset: 0x85ebca6b,
			},
		},
		Network: NetworkConfig{
			Listen:          ":8080",
			Path:            "/ws",
			WriteTimeout:    Duration(5 * time.Second),
			PingInterval:    Duration(20 * time.Second),
			MaxMessageBytes: 1 << 16,
		},
	}
}

func (c *Config) Validate() error {
	if c.Server.ID == "" {
		return errors.New("server.id must be set")
	}
	if c.Server.TickRate <= 0 {
		return errors.New("server.tickRate must be positive")
	}
	if c.Server.MaxBlocksPerTick < 0 {
		return errors.New("server.maxBlocksPerTick cannot be negative")
	}
	if c.Server.Workers < 0 {
		return errors.New("server.workers cannot be negative")
	}
	if c.Server.PreviewDir != "" && c.Server.PreviewEvery <= 0 {
		return errors.New("server.previewEvery must be positive when previews are enabled")
	}
	if err := c.Terrain.validate(); err != nil {
		return err
	}
	if c.Density.Octaves <= 0 {
		return errors.New("density.octaves must be positive")
	}
	if c.Density.GradientStep <= 0 {
		return errors.New("density.gradientStep must be positive")
	}
	lods := c.Terrain.LODCount()
	for _, veg := range c.Vegetation {
		if veg.Name == "" {
			return errors.New("vegetation.name must be set")
		}
		if len(veg.Densities) != lods {
			return fmt.Errorf("vegetation %q needs %d densities, got %d", veg.Name, lods, len(veg.Densities))
		}
		for _, d := range veg.Densities {
			if d < 0 {
				return fmt.Errorf("vegetation %q densities cannot be negative", veg.Name)
			}
		}
		for i := 0; i < 3; i++ {
			if veg.BoundsMax[i] < veg.BoundsMin[i] {
				return fmt.Errorf("vegetation %q bounds are inverted", veg.Name)
			}
		}
	}
	if c.Network.Listen != "" && c.Network.Path == "" {
		return errors.New("network.path must be set when network.listen is set")
	}
	return nil
}

func (t TerrainConfig) validate() error {
	for i := 0; i < 3; i++ {
		if t.BlockCount[i] <= 0 {
			return errors.New("terrain.blockCount must be positive")
		}
		if t.BlockDimensions[i] <= 0 {
			return errors.New("terrain.blockDimensions must be positive")
		}
		if t.BaseCubeCount[i] <= 0 {
			return errors.New("terrain.baseCubeCount must be positive")
		}
	}
	for i, d := range t.LODDistances {
		if d <= 0 {
			return errors.New("terrain.lodDistances must be positive")
		}
		if i > 0 && d <= t.LODDistances[i-1] {
			return errors.New("terrain.lodDistances must be strictly increasing")
		}
	}
	// cube_count[level] = base / (level+1) must stay >= 1 for the coarsest level.
	coarsest := t.LODCount()
	for i := 0; i < 3; i++ {
		if t.BaseCubeCount[i]/coarsest < 1 {
			return fmt.Errorf("terrain.baseCubeCount %v too small for %d detail levels", t.BaseCubeCount, coarsest)
		}
	}
	if t.UpdateDistance < 0 {
		return errors.New("terrain.updateDistance cannot be negative")
	}
	if t.SkirtDepth < 0 {
		return errors.New("terrain.skirtDepth cannot be negative")
	}
	for _, face := range t.SkirtFaces {
		if !validSkirtFace(face) {
			return fmt.Errorf("terrain.skirtFaces: unsupported face %q", face)
		}
	}
	return nil
}

func validSkirtFace(name string) bool {
	for _, f := range SkirtFaceNames {
		if f == name {
			return true
		}
	}
	return false
}
