// Package preview renders top-down PNG snapshots of the streamed terrain.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"terrainstream/internal/streaming"
)

const (
	previewAmbientLight = 0.25
	previewMaxSize      = 2048
)

var (
	previewBackground = color.NRGBA{R: 10, G: 10, B: 18, A: 255}
	previewLow        = color.NRGBA{R: 70, G: 92, B: 48, A: 255}
	previewHigh       = color.NRGBA{R: 196, G: 188, B: 170, A: 255}
	previewVegetation = color.NRGBA{R: 34, G: 120, B: 40, A: 255}
	previewLight      = mgl32.Vec3{-0.4, 1, -0.3}.Normalize()
)

type previewTriangle struct {
	points []image.Point
	height float32
	shade  float64
}

// Render draws every upward-facing triangle of the display list seen from
// above, coloured by height and lit by a fixed sun, with vegetation
// instances as dots. Scale is pixels per world unit.
func Render(d streaming.Display, scale float32) (*image.NRGBA, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("invalid preview scale %v", scale)
	}
	bounds := d.Bounds()
	if !bounds.Valid() {
		img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
		img.SetNRGBA(0, 0, previewBackground)
		return img, nil
	}
	size := bounds.Max.Sub(bounds.Min)
	width := int(math.Ceil(float64(size[0]*scale))) + 1
	height := int(math.Ceil(float64(size[2]*scale))) + 1
	if width > previewMaxSize || height > previewMaxSize {
		return nil, fmt.Errorf("preview of %dx%d pixels exceeds %d", width, height, previewMaxSize)
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{previewBackground}, image.Point{}, draw.Src)

	project := func(p mgl32.Vec3) image.Point {
		return image.Point{
			X: int(math.Round(float64((p[0] - bounds.Min[0]) * scale))),
			Y: int(math.Round(float64((p[2] - bounds.Min[2]) * scale))),
		}
	}

	var tris []previewTriangle
	for _, dm := range d.Meshes {
		m := dm.Mesh
		for i := 0; i < m.TriangleCount(); i++ {
			a, b, c := m.Triangle(i)
			n := b.Sub(a).Cross(c.Sub(a))
			if n.Len() == 0 {
				continue
			}
			n = n.Normalize()
			if n[1] <= 0 {
				continue
			}
			tris = append(tris, previewTriangle{
				points: []image.Point{project(a), project(b), project(c)},
				height: (a[1] + b[1] + c[1]) / 3,
				shade:  previewAmbientLight + (1-previewAmbientLight)*clamp(float64(n.Dot(previewLight)), 0, 1),
			})
		}
	}
	sort.Slice(tris, func(i, j int) bool { return tris[i].height < tris[j].height })

	span := bounds.Max[1] - bounds.Min[1]
	for _, tri := range tris {
		t := 0.0
		if span > 0 {
			t = float64((tri.height - bounds.Min[1]) / span)
		}
		fillPolygon(img, tri.points, applyLighting(blend(previewLow, previewHigh, t), tri.shade))
	}

	for _, veg := range d.Vegetation {
		for _, inst := range veg.Instances.Items {
			p := project(inst.Position)
			if p.In(img.Bounds()) {
				img.SetNRGBA(p.X, p.Y, previewVegetation)
			}
		}
	}
	return img, nil
}

// Save renders d and writes it to outputDir as tick_<n>.png, returning the
// file path.
func Save(d streaming.Display, scale float32, outputDir string, tick uint64) (string, error) {
	img, err := Render(d, scale)
	if err != nil {
		return "", err
	}
	if err := ensurePreviewDir(outputDir); err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, fmt.Sprintf("tick_%06d.png", tick))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create preview: %w", err)
	}
	defer file.Close()
	if err := png.Encode(file, img); err != nil {
		return "", fmt.Errorf("encode preview: %w", err)
	}
	return path, nil
}

func blend(a, b color.NRGBA, t float64) color.NRGBA {
	t = clamp(t, 0, 1)
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}
	return color.NRGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}

func applyLighting(base color.NRGBA, factor float64) color.NRGBA {
	factor = clamp(factor, 0, 1)
	r := uint8(math.Round(float64(base.R) * factor))
	g := uint8(math.Round(float64(base.G) * factor))
	b := uint8(math.Round(float64(base.B) * factor))
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func fillPolygon(img *image.NRGBA, pts []image.Point, col color.NRGBA) {
	if len(pts) < 3 {
		return
	}
	minY := pts[0].Y
	maxY := pts[0].Y
	for _, p := range pts[1:] {
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	bounds := img.Bounds()
	if minY < bounds.Min.Y {
		minY = bounds.Min.Y
	}
	if maxY > bounds.Max.Y-1 {
		maxY = bounds.Max.Y - 1
	}
	xs := make([]int, 0, len(pts))
	for y := minY; y <= maxY; y++ {
		xs = xs[:0]
		for i := range pts {
			j := (i + 1) % len(pts)
			x1, y1 := pts[i].X, pts[i].Y
			x2, y2 := pts[j].X, pts[j].Y
			if y1 == y2 {
				continue
			}
			lo, hi := y1, y2
			if lo > hi {
				lo, hi = hi, lo
			}
			// Include the bottom row of the topmost edge so thin triangles
			// still cover the pixel row they end on.
			if y < lo || y > hi || (y == hi && hi != maxY) {
				continue
			}
			xs = append(xs, x1+(y-y1)*(x2-x1)/(y2-y1))
		}
		if len(xs) < 2 {
			continue
		}
		sort.Ints(xs)
		xStart, xEnd := xs[0], xs[len(xs)-1]
		if xEnd < bounds.Min.X || xStart >= bounds.Max.X {
			continue
		}
		if xStart < bounds.Min.X {
			xStart = bounds.Min.X
		}
		if xEnd > bounds.Max.X-1 {
			xEnd = bounds.Max.X - 1
		}
		for x := xStart; x <= xEnd; x++ {
			idx := (y-bounds.Min.Y)*img.Stride + (x-bounds.Min.X)*4
			img.Pix[idx] = col.R
			img.Pix[idx+1] = col.G
			img.Pix[idx+2] = col.B
			img.Pix[idx+3] = col.A
		}
	}
}

func ensurePreviewDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("output directory is empty")
	}
	return os.MkdirAll(dir, 0o755)
}
