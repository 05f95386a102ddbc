package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"thirdcoast.systems/scanwatch/internal/incident"
)

// minWords is the shortest transcript worth a second classification; the
// live pipeline treats anything this short as noise.
const minWords = 6

type Store interface {
	ListReclassifyCandidates(ctx context.Context, bucket string, afterID int64, limit int) ([]incident.Incident, error)
	Reclassify(ctx context.Context, id int64, label string) (bool, error)
}

type Classifier interface {
	Classify(ctx context.Context, transcript string) (string, error)
}

type options struct {
	Bucket    string
	BatchSize int
	Limit     int
	DryRun    bool
}

type summary struct {
	Scanned    int
	Skipped    int
	Relabelled int
	Unchanged  int
	Failed     int
}

// reclassify walks every unknown row with a usable transcript and asks the
// classifier again. Rows are visited in id order, so rows that stay unknown
// are never revisited within a run.
func reclassify(ctx context.Context, store Store, cls Classifier, opts options, out io.Writer) (summary, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	var (
		s       summary
		afterID int64
	)
	for {
		rows, err := store.ListReclassifyCandidates(ctx, opts.Bucket, afterID, opts.BatchSize)
		if err != nil {
			return s, fmt.Errorf("list candidates after %d: %w", afterID, err)
		}
		for i := range rows {
			inc := &rows[i]
			afterID = inc.ID
			if opts.Limit > 0 && s.Scanned >= opts.Limit {
				return s, nil
			}
			s.Scanned++

			if len(strings.Fields(inc.Transcript)) < minWords {
				s.Skipped++
				continue
			}

			label, err := cls.Classify(ctx, inc.Transcript)
			if err != nil {
				if ctx.Err() != nil {
					return s, ctx.Err()
				}
				slog.Warn("classify failed", "id", inc.ID, "error", err)
				s.Failed++
				continue
			}
			label = incident.NormalizeLabel(label)
			if label == incident.LabelUnknown {
				s.Unchanged++
				continue
			}

			if opts.DryRun {
				fmt.Fprintf(out, "#%d %s: would relabel %s\n", inc.ID, inc.DayBucket, label)
				s.Relabelled++
				continue
			}
			applied, err := store.Reclassify(ctx, inc.ID, label)
			if err != nil {
				return s, fmt.Errorf("reclassify %d: %w", inc.ID, err)
			}
			if !applied {
				s.Unchanged++
				continue
			}
			fmt.Fprintf(out, "#%d %s: relabelled %s\n", inc.ID, inc.DayBucket, label)
			s.Relabelled++
		}
		if len(rows) < opts.BatchSize {
			return s, nil
		}
	}
}
