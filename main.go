// Command ipdcells runs a headless IPD-on-a-grid simulation and writes its
// telemetry collaborators: a per-step CSV (spec.md §6) and, optionally, a
// raw RGB24 frame stream for external video encoding. Ported from the
// teacher's main.go: stdlib flag parsing, slog JSON-to-stdout logging, and
// the same construct-then-loop shape, generalized from the teacher's
// windowed/graphical game loop down to the simulator's pull-snapshot loop
// since spec.md §6 names the CLI as "a thin collaborator, not part of
// core" with no interactive window.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/pthm-cable/ipdcells/config"
	"github.com/pthm-cable/ipdcells/engine"
	"github.com/pthm-cable/ipdcells/frame"
	"github.com/pthm-cable/ipdcells/telemetry"
)

// Exit codes per spec.md §6.
const (
	exitSuccess      = 0
	exitRuntimeError = 1
	exitInvalidArg   = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("ipdcells", flag.ContinueOnError)

	configPath := fs.String("config", "", "Path to config.yaml (empty = embedded defaults)")
	width := fs.Int("width", 0, "Grid width (0 = use config)")
	height := fs.Int("height", 0, "Grid height (0 = use config)")
	steps := fs.Int("timesteps", 0, "Number of ticks to run (0 = use config)")
	seed := fs.Int64("seed", 0, "RNG seed (0 = use config)")
	alpha := fs.Float64("alpha", 0, "Q-learning rate (0 = use config)")
	gamma := fs.Float64("gamma", -1, "Discount factor (-1 = use config)")
	epsilon := fs.Float64("epsilon", -1, "Exploration rate (-1 = use config)")
	videoOn := fs.Bool("video", false, "Enable raw RGB24 frame export")
	videoPath := fs.String("video-path", "", "Output path for the frame stream (required if -video)")
	csvPath := fs.String("csv-path", "", "Output path for the per-step CSV (unset = use config, \"\" disables)")
	fps := fs.Int("fps", 0, "Frames per second label for the video stream (0 = use config)")
	chunkSize := fs.Int("chunk-size", 0, "Worker dispatch chunk size (0 = auto)")
	threads := fs.Int("threads", 0, "Worker goroutine count (0 = GOMAXPROCS)")

	if err := fs.Parse(args); err != nil {
		return exitInvalidArg
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return exitInvalidArg
	}

	applyOverrides(cfg, overrides{
		width: *width, height: *height, steps: *steps, seed: *seed,
		alpha: *alpha, gamma: *gamma, epsilon: *epsilon,
		videoOn: *videoOn, videoPath: *videoPath, csvPath: *csvPath, csvPathSet: isFlagSet(fs, "csv-path"),
		fps: *fps, chunkSize: *chunkSize, threads: *threads,
	})

	if *videoOn && *videoPath == "" && cfg.Telemetry.VideoPath == "" {
		slog.Error("ConfigInvalid: -video requires -video-path or telemetry.video_path")
		return exitInvalidArg
	}

	eng, err := engine.New(cfg.EngineConfig())
	if err != nil {
		slog.Error("ConfigInvalid: failed to construct engine", "error", err)
		return exitInvalidArg
	}
	defer eng.Close()

	csvWriter, err := telemetry.Open(cfg.Telemetry.CSVPath)
	if err != nil {
		slog.Error("failed to open CSV output", "error", err)
		return exitRuntimeError
	}
	defer csvWriter.Close()

	var videoFile *os.File
	var mapper frame.ColorMapper
	if *videoOn {
		videoFile, err = os.Create(cfg.Telemetry.VideoPath)
		if err != nil {
			slog.Error("failed to open video output", "error", err)
			return exitRuntimeError
		}
		defer videoFile.Close()
		mapper = frame.NewColorMapper(maxPossibleGeneration(cfg))
	}

	start := time.Now()
	slog.Info("starting simulation",
		"width", cfg.Grid.Width, "height", cfg.Grid.Height,
		"timesteps", cfg.Run.Steps, "seed", cfg.Run.Seed,
		"alpha", cfg.Learning.Alpha, "gamma", cfg.Learning.Gamma, "epsilon", cfg.Learning.Epsilon,
	)

	ctx := context.Background()
	for tick := 0; tick < cfg.Run.Steps; tick++ {
		if err := eng.Step(ctx); err != nil {
			slog.Error("runtime failure", "tick", tick, "error", err)
			return exitRuntimeError
		}

		snap := eng.Snapshot()
		if err := csvWriter.WriteStep(snap.Stats); err != nil {
			slog.Error("failed to write CSV row", "tick", tick, "error", err)
			return exitRuntimeError
		}

		if videoFile != nil {
			f := frame.Render(snap, cfg.Grid.Width, cfg.Grid.Height, func(i uint32) (uint32, bool) {
				if int(i) >= eng.NumAgents() {
					return 0, false
				}
				a := eng.AgentAt(i)
				if !a.Active {
					return 0, false
				}
				return a.Generation, true
			}, mapper, cfg.Telemetry.Width, cfg.Telemetry.Height)
			if _, err := videoFile.Write(f.Pixels); err != nil {
				slog.Error("failed to write video frame", "tick", tick, "error", err)
				return exitRuntimeError
			}
		}
	}

	slog.Info("simulation complete", "ticks", cfg.Run.Steps, "elapsed", time.Since(start).String())
	return exitSuccess
}

type overrides struct {
	width, height, steps   int
	seed                   int64
	alpha, gamma, epsilon  float64
	videoOn                bool
	videoPath, csvPath     string
	csvPathSet             bool
	fps, chunkSize, threads int
}

func applyOverrides(cfg *config.Config, o overrides) {
	if o.width > 0 {
		cfg.Grid.Width = o.width
	}
	if o.height > 0 {
		cfg.Grid.Height = o.height
	}
	if o.steps > 0 {
		cfg.Run.Steps = o.steps
	}
	if o.seed != 0 {
		cfg.Run.Seed = o.seed
	}
	if o.alpha > 0 {
		cfg.Learning.Alpha = o.alpha
	}
	if o.gamma >= 0 {
		cfg.Learning.Gamma = o.gamma
	}
	if o.epsilon >= 0 {
		cfg.Learning.Epsilon = o.epsilon
	}
	if o.videoPath != "" {
		cfg.Telemetry.VideoPath = o.videoPath
	}
	if o.csvPathSet {
		cfg.Telemetry.CSVPath = o.csvPath
	}
	if o.fps > 0 {
		cfg.Telemetry.FPS = o.fps
	}
	if o.chunkSize > 0 {
		cfg.Run.ChunkSize = o.chunkSize
	}
	if o.threads > 0 {
		cfg.Run.NumWorkers = o.threads
	}
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// maxPossibleGeneration bounds the ColorMapper's hue sweep at the largest
// generation a fully-merged grid could ever reach: every cell under one
// organism.
func maxPossibleGeneration(cfg *config.Config) uint32 {
	g := uint32(cfg.Grid.Width) * uint32(cfg.Grid.Height)
	if g < 1 {
		g = 1
	}
	return g
}
