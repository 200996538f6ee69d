package cli

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"zmapd/internal/app"
	"zmapd/internal/feature"
	"zmapd/internal/manager"
	"zmapd/internal/view"
	"zmapd/internal/window"
	"zmapd/pkg/types"
)

type loadOptions struct {
	Sources []string
	Timeout time.Duration
}

func newLoadCmd(o *Options) *cobra.Command {
	lo := &loadOptions{Timeout: 30 * time.Second}
	cmd := &cobra.Command{
		Use:     "load <sequence[:start-end]>",
		Short:   "Open one view, wait for every source and print a feature set summary",
		Example: "  zmapd load chr1:1-100000 --source file:///data/genes.gff3\n  zmapd load --config zmapd.yaml chrX",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := feature.ParseSequence(args[0])
			if err != nil {
				return err
			}
			return runLoad(cmd, o, lo, seq)
		},
	}
	cmd.Flags().StringArrayVar(&lo.Sources, "source", nil, "Extra source URL (repeatable)")
	cmd.Flags().DurationVar(&lo.Timeout, "timeout", lo.Timeout, "Give up waiting for sources after this long")
	return cmd
}

func runLoad(cmd *cobra.Command, o *Options, lo *loadOptions, seq feature.Sequence) error {
	cfg, err := o.settings(cmd)
	if err != nil {
		return err
	}
	for _, u := range lo.Sources {
		cfg.Sources = append(cfg.Sources, types.Source{Name: u, URL: u})
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(cfg.Sources) == 0 {
		return fmt.Errorf("no sources: pass --source, --data-dir or a config file")
	}

	logger := app.NewLogger(os.Stderr, cfg.LogLevel)
	text := &window.Text{}
	wait := newLoadWaiter(len(cfg.Sources))
	m := manager.NewWithConfig(manager.ManagerConfig{
		App:           &app.Context{Logger: logger},
		Sources:       cfg.Sources,
		PollInterval:  cfg.PollInterval(),
		TeardownGrace: 2 * time.Second,
		WindowFactory: func(string, *view.View) view.Window { return text },
		Publisher:     wait,
		DNA:           cfg.DNA,
		Samtools:      cfg.Samtools,
	})

	ctx, cancel := context.WithTimeout(cmd.Context(), lo.Timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	defer func() { cancel(); <-done }()
	if err := waitReady(ctx, m); err != nil {
		return err
	}

	out, err := m.Add(ctx, seq)
	if err != nil {
		return err
	}
	if out.Result != manager.AddOK {
		return fmt.Errorf("load %s: %s: %s", seq, out.Result, out.Reason)
	}
	select {
	case <-wait.done:
	case <-ctx.Done():
		logger.Warn().Str("event", "load_timeout").Dur("timeout", lo.Timeout).Msg("not every source answered")
	}
	loaded, failed := wait.counts()
	if loaded == 0 {
		return fmt.Errorf("load %s: no source returned data (%d failed)", seq, failed)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), text.String())
	return err
}

// loadWaiter counts per source outcomes and closes done once every source
// either delivered data or failed.
type loadWaiter struct {
	mu     sync.Mutex
	want   int
	loaded map[string]bool
	failed map[string]bool
	done   chan struct{}
	once   sync.Once
}

func newLoadWaiter(want int) *loadWaiter {
	return &loadWaiter{want: want, loaded: map[string]bool{}, failed: map[string]bool{}, done: make(chan struct{})}
}

func (w *loadWaiter) Publish(e manager.Event) {
	server, _ := e.Fields["server"].(string)
	w.mu.Lock()
	defer w.mu.Unlock()
	switch e.Name {
	case manager.EventDataLoaded:
		w.loaded[server] = true
	case manager.EventConnectionFailed:
		w.failed[server] = true
	case manager.EventZMapDeleted:
		w.finish()
		return
	default:
		return
	}
	seen := len(w.loaded)
	for s := range w.failed {
		if !w.loaded[s] {
			seen++
		}
	}
	if seen >= w.want {
		w.finish()
	}
}

func (w *loadWaiter) finish() { w.once.Do(func() { close(w.done) }) }

func (w *loadWaiter) counts() (loaded, failed int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.loaded), len(w.failed)
}

var _ manager.EventPublisher = (*loadWaiter)(nil)
