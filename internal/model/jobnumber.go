package model

import (
	"fmt"
	"strconv"
	"strings"
)

// JobNumberPrefix leads every job number.
const JobNumberPrefix = "AAL"

// JobNumber is the parsed form of AAL-<ABBR>-<YY>-<SEQ>.
type JobNumber struct {
	Abbr string
	Year int // two digits
	Seq  int
}

// NewJobNumber builds the number for a canonical type in a calendar year.
func NewJobNumber(t JobType, year, seq int) (JobNumber, error) {
	abbr, err := t.Abbreviation()
	if err != nil {
		return JobNumber{}, err
	}
	if year < 0 {
		return JobNumber{}, fmt.Errorf("%w: negative year %d", ErrValidation, year)
	}
	if seq < 1 {
		return JobNumber{}, fmt.Errorf("%w: sequence must start at 1, got %d", ErrValidation, seq)
	}
	return JobNumber{Abbr: abbr, Year: year % 100, Seq: seq}, nil
}

// String pads the sequence to three digits. Sequences above 999 widen.
func (n JobNumber) String() string {
	return fmt.Sprintf("%s-%s-%02d-%03d", JobNumberPrefix, n.Abbr, n.Year, n.Seq)
}

// BucketPrefix is the shared prefix of every number in the same bucket,
// including the trailing hyphen.
func (n JobNumber) BucketPrefix() string {
	return BucketPrefix(n.Abbr, n.Year)
}

func (n JobNumber) JobType() JobType {
	t, _ := typeForAbbreviation(n.Abbr)
	return t
}

// BucketPrefix formats AAL-<ABBR>-<YY>- for a two-digit or full year.
func BucketPrefix(abbr string, year int) string {
	return fmt.Sprintf("%s-%s-%02d-", JobNumberPrefix, abbr, year%100)
}

// ParseJobNumber parses a well-formed job number. Anything else, including
// non-numeric sequences, is rejected with ErrValidation.
func ParseJobNumber(raw string) (JobNumber, error) {
	parts := strings.Split(raw, "-")
	if len(parts) != 4 {
		return JobNumber{}, fmt.Errorf("%w: job number %q must have 4 parts", ErrValidation, raw)
	}
	if parts[0] != JobNumberPrefix {
		return JobNumber{}, fmt.Errorf("%w: job number %q has unknown prefix", ErrValidation, raw)
	}
	if _, ok := typeForAbbreviation(parts[1]); !ok {
		return JobNumber{}, fmt.Errorf("%w: job number %q has unknown type code", ErrValidation, raw)
	}
	if len(parts[2]) != 2 || !allDigits(parts[2]) {
		return JobNumber{}, fmt.Errorf("%w: job number %q has malformed year", ErrValidation, raw)
	}
	if parts[3] == "" || !allDigits(parts[3]) {
		return JobNumber{}, fmt.Errorf("%w: job number %q has malformed sequence", ErrValidation, raw)
	}
	year, _ := strconv.Atoi(parts[2])
	seq, err := strconv.Atoi(parts[3])
	if err != nil || seq < 1 {
		return JobNumber{}, fmt.Errorf("%w: job number %q has malformed sequence", ErrValidation, raw)
	}
	return JobNumber{Abbr: parts[1], Year: year, Seq: seq}, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
