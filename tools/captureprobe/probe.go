package captureprobe

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"wanderfield/simcore/internal/capture"
)

// Summary condenses one capture bundle into the numbers an operator checks
// before pulling the full artefacts.
type Summary struct {
	Path       string         `json:"path"`
	SessionID  string         `json:"session_id"`
	World      string         `json:"world"`
	CreatedAt  string         `json:"created_at"`
	Events     int            `json:"events"`
	EventKinds map[string]int `json:"event_kinds,omitempty"`
	Frames     int            `json:"frames"`
	FirstTick  uint64         `json:"first_tick"`
	LastTick   uint64         `json:"last_tick"`
	SimSpanMs  float64        `json:"sim_span_ms"`
}

// Inspect opens a single bundle directory and tallies its contents.
func Inspect(dir string) (Summary, error) {
	bundle, err := capture.OpenBundle(dir)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		Path:      dir,
		SessionID: bundle.Manifest.SessionID,
		World:     bundle.Header.World.Name,
		CreatedAt: bundle.Manifest.CreatedAt,
	}

	//1.- Tally events by kind so anomalies stand out without decoding payloads.
	kinds := map[string]int{}
	err = bundle.Events(func(record capture.EventRecord) error {
		summary.Events++
		kinds[record.Kind]++
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("scan events: %w", err)
	}
	if len(kinds) > 0 {
		summary.EventKinds = kinds
	}

	//2.- Walk the frame log for the tick range and the simulated span.
	var firstSim float64
	err = bundle.Frames(func(record capture.FrameRecord) error {
		if summary.Frames == 0 {
			summary.FirstTick = record.Tick
			firstSim = record.SimMS
		}
		summary.LastTick = record.Tick
		summary.SimSpanMs = record.SimMS - firstSim
		summary.Frames++
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("scan frames: %w", err)
	}
	return summary, nil
}

// Scan walks the directory tree and summarises every finished bundle under it.
func Scan(root string) ([]Summary, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory")
	}

	var summaries []Summary
	//1.- Headers land at close, so keying the walk on them skips bundles still being written.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || d.Name() != "header.json" {
			return nil
		}
		summary, err := Inspect(filepath.Dir(path))
		if err != nil {
			return err
		}
		summaries = append(summaries, summary)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].SessionID == summaries[j].SessionID {
			return summaries[i].Path < summaries[j].Path
		}
		return summaries[i].SessionID < summaries[j].SessionID
	})
	return summaries, nil
}

// MarshalSummaries produces a stable JSON representation for CLI output.
func MarshalSummaries(summaries []Summary) ([]byte, error) {
	//1.- Marshal with indentation to keep CLI output legible for operators.
	return json.MarshalIndent(summaries, "", "  ")
}
