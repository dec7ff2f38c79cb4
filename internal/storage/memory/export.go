// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ridemap/ridemap/pkg/core"
)

// Export is the root JSON structure written by Dump
type Export struct {
	ExportedAt time.Time     `json:"exportedAt"`
	Sessions   []SessionJSON `json:"sessions"`
	TripCount  int           `json:"tripCount"`
}

// SessionJSON groups the trips and account of one session
type SessionJSON struct {
	SessionID string        `json:"sessionId"`
	Account   *core.Account `json:"account,omitempty"`
	Trips     []core.Trip   `json:"trips"`
}

// Dump writes all stored data to a JSON file in the output directory
func (b *Backend) Dump() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	export := b.buildExport(time.Now().UTC())

	filename := fmt.Sprintf("trips_%s.json", export.ExportedAt.Format("20060102_150405"))
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport(now time.Time) Export {
	ids := make(map[string]struct{}, len(b.trips)+len(b.accounts))
	for id := range b.trips {
		ids[id] = struct{}{}
	}
	for id := range b.accounts {
		ids[id] = struct{}{}
	}

	export := Export{ExportedAt: now, Sessions: make([]SessionJSON, 0, len(ids))}
	for id := range ids {
		s := SessionJSON{SessionID: id, Trips: b.trips[id]}
		if s.Trips == nil {
			s.Trips = []core.Trip{}
		}
		if a, ok := b.accounts[id]; ok {
			s.Account = &a
		}
		export.TripCount += len(s.Trips)
		export.Sessions = append(export.Sessions, s)
	}
	sort.Slice(export.Sessions, func(i, j int) bool {
		return export.Sessions[i].SessionID < export.Sessions[j].SessionID
	})
	return export
}

func writeJSON(path string, data Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
