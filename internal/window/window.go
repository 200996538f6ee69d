// Package window provides headless display windows for views.
package window

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"zmapd/internal/feature"
	"zmapd/internal/view"
)

// Report is what a Summary window currently shows.
type Report struct {
	Displays  int
	Sets      []feature.SetSummary
	Features  int
	Destroyed bool
}

// Summary logs a per feature set summary every time data arrives.
type Summary struct {
	mu     sync.Mutex
	log    zerolog.Logger
	report Report
}

// NewSummary returns a window logging through logger.
func NewSummary(logger zerolog.Logger, zmapID, viewID string) *Summary {
	return &Summary{log: logger.With().Str("component", "window").Str("zmap", zmapID).Str("view", viewID).Logger()}
}

// Factory returns a constructor usable as the manager's window factory.
func Factory(logger zerolog.Logger) func(zmapID string, v *view.View) view.Window {
	return func(zmapID string, v *view.View) view.Window {
		return NewSummary(logger, zmapID, v.ID())
	}
}

func (s *Summary) DisplayData(viewCtx, payload *feature.Context) {
	sets := viewCtx.Summary()
	total := viewCtx.FeatureCount()
	s.mu.Lock()
	if s.report.Destroyed {
		s.mu.Unlock()
		return
	}
	s.report.Displays++
	s.report.Sets = sets
	s.report.Features = total
	s.mu.Unlock()
	s.log.Info().Str("event", "display").Str("sequence", viewCtx.Sequence.String()).Int("sets", len(sets)).Int("features", total).Int("payload_features", payload.FeatureCount()).Msg("view updated")
}

func (s *Summary) Reset() {
	s.mu.Lock()
	s.report.Sets, s.report.Features = nil, 0
	s.mu.Unlock()
	s.log.Debug().Str("event", "reset").Msg("window blanked")
}

func (s *Summary) Destroy() {
	s.mu.Lock()
	s.report.Destroyed = true
	s.mu.Unlock()
}

// Report returns a copy of the current content.
func (s *Summary) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.report
	r.Sets = append([]feature.SetSummary(nil), r.Sets...)
	return r
}

// WriteSummary prints one line per feature set of fc.
func WriteSummary(w io.Writer, fc *feature.Context) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "FEATURESET\tSTYLE\tFEATURES\n")
	for _, s := range fc.Summary() {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", s.Name, s.Style, s.Features)
	}
	dna := "no"
	if b := fc.MasterBlock(); b != nil && b.DNA != "" {
		dna = fmt.Sprintf("%d bp", len(b.DNA))
	}
	fmt.Fprintf(tw, "\t\t\n%s\ttotal\t%d\n", fc.Sequence.String(), fc.FeatureCount())
	fmt.Fprintf(tw, "dna\t%s\t\n", dna)
	return tw.Flush()
}

// Text keeps the latest WriteSummary rendering of its view.
type Text struct {
	mu   sync.Mutex
	text string
}

func (t *Text) DisplayData(viewCtx, payload *feature.Context) {
	var b strings.Builder
	_ = WriteSummary(&b, viewCtx)
	t.mu.Lock()
	t.text = b.String()
	t.mu.Unlock()
}

func (t *Text) Reset() {
	t.mu.Lock()
	t.text = ""
	t.mu.Unlock()
}

// Destroy keeps the last rendering so it can still be printed.
func (t *Text) Destroy() {}

func (t *Text) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text
}
