package wal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/voxstore/voxdb/internal/logger"
)

const segmentSuffixPrefix = "."

// Enumerator discovers the ordered list of log files recovery must replay,
// and classifies a file as empty once the scanner has visited it.
//
// This is the Go-native replacement for the teacher's live-traffic
// Rotator: rotation itself (ShouldRotate/Rotate/CleanupOldSegments) is an
// out-of-scope external collaborator per SPEC_FULL.md §1; recovery only
// ever needs the ordered read path and the empty-file test.
type Enumerator struct {
	basePath string
	logger   *logger.Logger
}

func NewEnumerator(basePath string, log *logger.Logger) *Enumerator {
	return &Enumerator{basePath: basePath, logger: log}
}

// OrderedPaths returns every log file for this WAL base path in recovery
// order: oldest rotated segment first, the active (unrotated) file last.
func (e *Enumerator) OrderedPaths() ([]string, error) {
	segments, err := e.listSegments()
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(segments)+1)
	paths = append(paths, segments...)

	if _, err := os.Stat(e.basePath); err == nil {
		paths = append(paths, e.basePath)
	}
	return paths, nil
}

func (e *Enumerator) listSegments() ([]string, error) {
	dir := filepath.Dir(e.basePath)
	baseName := filepath.Base(e.basePath)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("wal: read log directory: %w", err)
	}

	var segments []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !isSegmentName(baseName, name) {
			continue
		}
		segments = append(segments, filepath.Join(dir, name))
	}

	sort.Slice(segments, func(i, j int) bool {
		seqI, _ := extractSequenceNumber(baseName, segments[i])
		seqJ, _ := extractSequenceNumber(baseName, segments[j])
		return seqI < seqJ
	})

	if len(segments) > 0 {
		e.logger.Debug("found %d log segments for %s", len(segments), e.basePath)
	}
	return segments, nil
}

// IsEmpty reports whether path contains no markers other than HEADER/FOOTER
// — the classification the scanner (C4) uses to schedule a file for the
// reaper (C8).
func (e *Enumerator) IsEmpty(path string) (bool, error) {
	reader := NewReader(path, e.logger)
	if err := reader.Open(); err != nil {
		return false, err
	}
	defer reader.Close()

	for {
		marker, err := reader.Next()
		if err != nil {
			return false, err
		}
		if marker == nil {
			return true, nil
		}
		if marker.Type != MarkerHeader && marker.Type != MarkerFooter {
			return false, nil
		}
	}
}

func isSegmentName(baseName, filename string) bool {
	if len(filename) <= len(baseName) {
		return false
	}
	if filename[:len(baseName)] != baseName {
		return false
	}

	suffix := filename[len(baseName):]
	if len(suffix) < len(segmentSuffixPrefix)+1 {
		return false
	}
	if suffix[0:len(segmentSuffixPrefix)] != segmentSuffixPrefix {
		return false
	}

	rest := suffix[len(segmentSuffixPrefix):]
	lastDot := strings.LastIndex(rest, segmentSuffixPrefix)
	numStr := rest
	if lastDot >= 0 {
		numStr = rest[lastDot+len(segmentSuffixPrefix):]
	}
	if numStr == "" {
		return false
	}
	for _, c := range numStr {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func extractSequenceNumber(baseName, segmentPath string) (int, error) {
	filename := filepath.Base(segmentPath)
	if len(filename) <= len(baseName)+len(segmentSuffixPrefix) {
		return 0, errors.New("wal: invalid segment name")
	}
	if filename[:len(baseName)] != baseName {
		return 0, errors.New("wal: invalid segment base name")
	}

	suffix := filename[len(baseName)+len(segmentSuffixPrefix):]
	lastDot := strings.LastIndex(suffix, segmentSuffixPrefix)
	seqStr := suffix
	if lastDot >= 0 {
		seqStr = suffix[lastDot+len(segmentSuffixPrefix):]
	}
	seq, err := strconv.Atoi(seqStr)
	if err != nil {
		return 0, fmt.Errorf("wal: invalid sequence number: %w", err)
	}
	return seq, nil
}
