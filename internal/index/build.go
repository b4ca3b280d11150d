package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/match"
	apperrors "github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/errors"
)

const (
	buildCheckEvery = 1024
	// maxReportedErrors caps how many skip reasons a report keeps; Skipped
	// still counts all of them.
	maxReportedErrors = 50
)

// Extractor returns the entity names a record references. Names repeated
// within one record are indexed once.
type Extractor func(r *match.Record) []string

// BuildError describes one record that was skipped during a build.
type BuildError struct {
	Position int
	RecordID string
	Reason   string
}

func (e *BuildError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("record %d skipped: %s", e.Position, e.Reason)
	}
	return fmt.Sprintf("record %d (%s) skipped: %s", e.Position, e.RecordID, e.Reason)
}

func (e *BuildError) Unwrap() error {
	return apperrors.ErrIndexBuild
}

// BuildReport summarises one build.
type BuildReport struct {
	Kind     string        `json:"kind"`
	Scanned  int           `json:"scanned"`
	Indexed  int           `json:"indexed"`
	Skipped  int           `json:"skipped"`
	Entities int           `json:"entities"`
	Duration time.Duration `json:"duration"`
	Errors   []*BuildError `json:"-"`
}

// Build scans records once and returns a new snapshot. Malformed records and
// repeated match IDs are skipped and reported; only ctx cancellation fails
// the build.
func Build(ctx context.Context, kind string, records []match.Record, extract Extractor) (*Snapshot, BuildReport, error) {
	logger := slog.Default().With("component", "index-build", "kind", kind)
	start := time.Now()

	snap := emptySnapshot(kind)
	snap.records = make([]string, 0, len(records))
	report := BuildReport{Kind: kind, Scanned: len(records)}

	skip := func(pos int, id, reason string) {
		report.Skipped++
		be := &BuildError{Position: pos, RecordID: id, Reason: reason}
		if len(report.Errors) < maxReportedErrors {
			report.Errors = append(report.Errors, be)
		}
		logger.Warn("skipping record", "position", pos, "match_id", id, "reason", reason)
	}

	for i := range records {
		if i%buildCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, report, fmt.Errorf("building %s index: %w", kind, err)
			}
		}
		r := &records[i]
		if err := r.Validate(); err != nil {
			skip(i, "", err.Error())
			continue
		}
		if _, dup := snap.positions[r.ID]; dup {
			skip(i, r.ID, "duplicate matchId")
			continue
		}

		ordinal := uint32(len(snap.records))
		snap.records = append(snap.records, r.ID)
		snap.positions[r.ID] = ordinal
		for _, name := range extract(r) {
			bm, ok := snap.ordinals[name]
			if !ok {
				bm = roaring.New()
				snap.ordinals[name] = bm
				snap.entries[name] = &Entry{Key: name}
			}
			if !bm.CheckedAdd(ordinal) {
				continue
			}
			e := snap.entries[name]
			e.RecordIDs = append(e.RecordIDs, r.ID)
			e.Count++
		}
	}

	for _, bm := range snap.ordinals {
		bm.RunOptimize()
	}
	report.Indexed = len(snap.records)
	report.Entities = len(snap.entries)
	report.Duration = time.Since(start)
	snap.builtAt = time.Now()
	snap.report = report
	return snap, report, nil
}
