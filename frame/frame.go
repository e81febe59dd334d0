// Package frame implements the raw RGB24 frame format and the organism
// color mapping described in spec.md §6, for the out-of-core video export
// collaborator. The engine never imports this package. Grounded on
// raylib-go's rl.Color / rl.ColorFromHSV, used purely as color-space math
// (no window or GPU context is ever opened) — the same library the teacher
// links for rendering, exercised here for its HSV conversion instead.
package frame

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/ipdcells/engine"
)

// Background is the reserved color for inactive cells. Per spec.md §6 this
// never actually appears once the partition invariant holds; it exists for
// robustness against a caller reading a Frame mid-invariant-violation
// (e.g. under a fuzzer).
var Background = rl.Color{R: 8, G: 8, B: 8, A: 255}

// Frame is a row-major RGB24 buffer, one frame per output tick.
type Frame struct {
	Width, Height int
	Pixels        []byte // len == Width*Height*3
}

// New allocates a zeroed frame of the given dimensions.
func New(width, height int) *Frame {
	return &Frame{Width: width, Height: height, Pixels: make([]byte, width*height*3)}
}

// set writes color c into the pixel at (px, py). Scaling from grid cells
// to pixels is done by Render.
func (f *Frame) set(px, py int, c rl.Color) {
	i := (py*f.Width + px) * 3
	f.Pixels[i] = c.R
	f.Pixels[i+1] = c.G
	f.Pixels[i+2] = c.B
}

// ColorMapper assigns each organism a color by generation (organism size):
// small organisms get a cool hue, large ones a warm hue, sweeping blue
// through red as generation approaches maxGeneration.
type ColorMapper struct {
	maxGeneration uint32
}

// NewColorMapper creates a mapper that saturates its hue sweep at
// maxGeneration; organisms larger than that still get the warmest hue
// rather than wrapping the hue circle back toward cool.
func NewColorMapper(maxGeneration uint32) ColorMapper {
	if maxGeneration < 1 {
		maxGeneration = 1
	}
	return ColorMapper{maxGeneration: maxGeneration}
}

// ColorFor returns the color for an organism of the given generation.
// Hue sweeps from 240 (blue, cool) down to 0 (red, warm) as generation
// grows, via rl.ColorFromHSV.
func (m ColorMapper) ColorFor(generation uint32) rl.Color {
	t := float32(generation) / float32(m.maxGeneration)
	if t > 1 {
		t = 1
	}
	hue := 240 * (1 - t)
	return rl.ColorFromHSV(hue, 0.8, 0.9)
}

// Render draws one Frame from a Snapshot's cell_owner view and the
// engine's current agent generations. width/height are the output video
// resolution; cells map onto pixels by nearest-neighbor scaling.
func Render(snap engine.Snapshot, gridWidth, gridHeight int, agentGeneration func(agentIdx uint32) (uint32, bool), mapper ColorMapper, width, height int) *Frame {
	f := New(width, height)
	for py := 0; py < height; py++ {
		row := py * gridHeight / height
		for px := 0; px < width; px++ {
			col := px * gridWidth / width
			cell := row*gridWidth + col
			if cell < 0 || cell >= len(snap.CellOwner) {
				f.set(px, py, Background)
				continue
			}
			owner := snap.CellOwner[cell]
			gen, ok := agentGeneration(owner)
			if !ok {
				f.set(px, py, Background)
				continue
			}
			f.set(px, py, mapper.ColorFor(gen))
		}
	}
	return f
}
