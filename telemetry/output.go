// Package telemetry is the CSV statistics writer: an out-of-core
// collaborator (spec.md §1) that the engine never imports. Ported from the
// teacher's OutputManager, generalized from its three-file (telemetry,
// perf, bookmarks) layout down to the single step-record CSV spec.md §6
// requires, keeping the same header-on-first-write-then-headerless
// gocsv.Marshal / MarshalWithoutHeaders pattern.
package telemetry

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/ipdcells/stats"
)

// StepRecord is one CSV row: the exact column layout spec.md §6 specifies.
type StepRecord struct {
	Step              int     `csv:"step"`
	Active            int     `csv:"active"`
	Unicellular       int     `csv:"unicellular"`
	Multicellular     int     `csv:"multicellular"`
	MeanFitness       float64 `csv:"mean_fitness"`
	MeanFitnessUni    float64 `csv:"mean_fitness_uni"`
	MeanFitnessMulti  float64 `csv:"mean_fitness_multi"`
	CoopCount         int     `csv:"coop_count"`
	DefectCount       int     `csv:"defect_count"`
	MergeCount        int     `csv:"merge_count"`
	SplitCount        int     `csv:"split_count"`
	MaxOrgSize        uint32  `csv:"max_org_size"`
}

// RecordFromStatistics converts an engine-published Statistics record into
// the CSV row shape.
func RecordFromStatistics(s stats.Statistics) StepRecord {
	return StepRecord{
		Step:             s.Tick,
		Active:           s.Active,
		Unicellular:      s.Unicellular,
		Multicellular:    s.Multicellular,
		MeanFitness:      s.MeanFitness,
		MeanFitnessUni:   s.MeanFitnessUni,
		MeanFitnessMulti: s.MeanFitnessMulti,
		CoopCount:        s.Actions.Cooperate,
		DefectCount:      s.Actions.Defect,
		MergeCount:       s.MergeCount,
		SplitCount:       s.SplitCount,
		MaxOrgSize:       s.MaxOrgSize,
	}
}

// Writer appends one StepRecord per call to a CSV file, writing the header
// row only on the first call.
type Writer struct {
	file          *os.File
	headerWritten bool
}

// NewWriter creates (truncating) the CSV file at path. A nil *Writer (not
// returned by this constructor, but see Open below) makes every method a
// no-op, the teacher's pattern for "telemetry disabled" call sites that
// don't want to branch on a bool everywhere.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating %s: %w", path, err)
	}
	return &Writer{file: f}, nil
}

// Open returns nil, nil if path is empty (telemetry disabled), otherwise
// behaves like NewWriter.
func Open(path string) (*Writer, error) {
	if path == "" {
		return nil, nil
	}
	return NewWriter(path)
}

// WriteStep appends one row, writing the header on the first call.
func (w *Writer) WriteStep(s stats.Statistics) error {
	if w == nil {
		return nil
	}
	records := []StepRecord{RecordFromStatistics(s)}
	if !w.headerWritten {
		if err := gocsv.Marshal(records, w.file); err != nil {
			return fmt.Errorf("telemetry: writing step %d: %w", s.Tick, err)
		}
		w.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, w.file); err != nil {
		return fmt.Errorf("telemetry: writing step %d: %w", s.Tick, err)
	}
	return nil
}

// Close flushes and closes the underlying file. Safe to call on nil.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	return w.file.Close()
}
