// Package stats writes a plain-text summary of a finished filter run.
package stats

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// DefaultDir is where summaries go when no directory is given.
const DefaultDir = "logs"

// RunSummary holds timing and metadata for one run.
type RunSummary struct {
	RunID     string
	Filter    string
	Transport string
	Workers   int
	Width     int
	Height    int
	Channels  int
	Elapsed   time.Duration
	Digest    uint64
	Input     string
	Output    string
	Timestamp time.Time

	// Rows owned by each worker, indexed by rank.
	Rows []int
}

// Write renders the summary in its text form.
func (s RunSummary) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w, "=== Distributed %s Filter Results ===\n"+
		"Timestamp: %s\n\n"+
		"Run: %s\n"+
		"Transport: %s\n"+
		"Workers: %d\n"+
		"Image: %dx%d, %d channels\n"+
		"Processing time: %.6fs\n"+
		"Output digest: %016x\n",
		s.Filter, s.Timestamp.Format("2006-01-02 15:04:05"),
		s.RunID, s.Transport, s.Workers,
		s.Width, s.Height, s.Channels,
		s.Elapsed.Seconds(), s.Digest)
	if err != nil {
		return err
	}

	if len(s.Rows) > 0 {
		fmt.Fprintf(w, "\nRows per worker:\n")
		for rank, rows := range s.Rows {
			fmt.Fprintf(w, "  %d. %d\n", rank, rows)
		}
	}

	fmt.Fprintf(w, "\nInput file:\n  %s\n", s.Input)
	_, err = fmt.Fprintf(w, "\nOutput file:\n  %s\n", s.Output)
	return err
}

// WriteRunSummary writes s to dir/<filter>_<timestamp>.txt, creating dir if
// needed, and returns the path written.
func WriteRunSummary(dir string, s RunSummary) (string, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	name := fmt.Sprintf("%s_%s.txt", s.Filter, s.Timestamp.Format("2006-01-02_15-04-05"))
	path := filepath.Join(dir, name)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create summary: %w", err)
	}
	defer file.Close()

	if err := s.Write(file); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	return path, file.Close()
}
