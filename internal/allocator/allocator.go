// Package allocator derives the next sequential job number for a bucket.
//
// The next sequence is recomputed from the stored job numbers on every call;
// there is no counter. Two concurrent callers can therefore compute the same
// number. The unique index on jobs.job_number rejects the second insert with
// model.ErrUniquenessConflict, and the caller must allocate again and retry
// (see jobs.Service.Create and migrator.Migrator). Allocator itself never
// retries and never writes.
package allocator

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/aal-logistics/api-go/internal/model"
)

// NumberSource lists stored job numbers sharing a prefix.
type NumberSource interface {
	JobNumbersWithPrefix(ctx context.Context, prefix string) ([]string, error)
}

type Allocator struct {
	source NumberSource
}

func New(source NumberSource) *Allocator {
	return &Allocator{source: source}
}

// Allocate returns the next unused number in the (jobType, year) bucket as
// of the read. year may be a full or two-digit year.
func (a *Allocator) Allocate(ctx context.Context, jobType model.JobType, year int) (model.JobNumber, error) {
	abbr, err := jobType.Abbreviation()
	if err != nil {
		return model.JobNumber{}, err
	}
	if year < 0 {
		return model.JobNumber{}, fmt.Errorf("%w: negative year %d", model.ErrValidation, year)
	}

	prefix := model.BucketPrefix(abbr, year)
	numbers, err := a.source.JobNumbersWithPrefix(ctx, prefix)
	if err != nil {
		return model.JobNumber{}, err
	}
	return model.NewJobNumber(jobType, year, MaxSequence(prefix, numbers)+1)
}

// MaxSequence returns the greatest sequence among numbers that belong to the
// bucket, or 0. Malformed numbers are skipped.
func MaxSequence(prefix string, numbers []string) int {
	max := 0
	for _, raw := range numbers {
		if !strings.HasPrefix(raw, prefix) {
			continue
		}
		n, err := model.ParseJobNumber(raw)
		if err != nil {
			continue
		}
		if n.Seq > max {
			max = n.Seq
		}
	}
	return max
}
