package feature

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sequence identifies a reference sequence and an optional 1-based, inclusive
// coordinate range. Start == End == 0 means the whole sequence.
type Sequence struct {
	Name  string `json:"name" yaml:"name" toml:"name"`
	Start int    `json:"start,omitempty" yaml:"start,omitempty" toml:"start,omitempty"`
	End   int    `json:"end,omitempty" yaml:"end,omitempty" toml:"end,omitempty"`
}

// ErrInvalidSequence wraps every Validate failure.
var ErrInvalidSequence = errors.New("invalid sequence")

// Validate reports whether the sequence can be requested from a server.
func (s Sequence) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidSequence)
	}
	if s.Start < 0 || s.End < 0 {
		return fmt.Errorf("%w: %s has negative coordinates %d-%d", ErrInvalidSequence, s.Name, s.Start, s.End)
	}
	if s.End != 0 && s.Start > s.End {
		return fmt.Errorf("%w: %s starts at %d after end %d", ErrInvalidSequence, s.Name, s.Start, s.End)
	}
	return nil
}

// Whole reports whether no coordinate range was given.
func (s Sequence) Whole() bool { return s.Start == 0 && s.End == 0 }

// Overlaps reports whether [start,end] intersects the sequence range.
func (s Sequence) Overlaps(start, end int) bool {
	if s.Whole() {
		return true
	}
	lo := s.Start
	if lo == 0 {
		lo = 1
	}
	return end >= lo && (s.End == 0 || start <= s.End)
}

func (s Sequence) String() string {
	if s.Whole() {
		return s.Name
	}
	return fmt.Sprintf("%s:%d-%d", s.Name, s.Start, s.End)
}

// ParseSequence parses "name" or "name:start-end".
func ParseSequence(v string) (Sequence, error) {
	v = strings.TrimSpace(v)
	name, rng, ok := strings.Cut(v, ":")
	seq := Sequence{Name: name}
	if ok {
		from, to, ok2 := strings.Cut(rng, "-")
		if !ok2 {
			return Sequence{}, fmt.Errorf("invalid range %q", rng)
		}
		var err error
		if seq.Start, err = strconv.Atoi(strings.ReplaceAll(from, ",", "")); err != nil {
			return Sequence{}, fmt.Errorf("invalid start %q: %w", from, err)
		}
		if seq.End, err = strconv.Atoi(strings.ReplaceAll(to, ",", "")); err != nil {
			return Sequence{}, fmt.Errorf("invalid end %q: %w", to, err)
		}
	}
	if err := seq.Validate(); err != nil {
		return Sequence{}, err
	}
	return seq, nil
}
