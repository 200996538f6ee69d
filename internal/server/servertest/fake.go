// Package servertest provides a scriptable in-memory server backend for tests
// of code that drives server.Server.
package servertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"

	"zmapd/internal/feature"
	"zmapd/internal/server"
)

// Scheme is the URL scheme the fake backend is registered under.
const Scheme = "fake"

var (
	registerOnce sync.Once
	fakesMu      sync.Mutex
	fakes        = map[string]*Fake{}
)

// Fake controls every backend created for its URL.
type Fake struct {
	mu          sync.Mutex
	openErr     error
	infoErr     error
	contextErr  error
	featuresErr error
	panicOnLoad bool
	block       chan struct{}
	sets        map[string]int
	opens       int
	loads       int
	closes      int
}

// New registers a fake and returns it with its URL. It is removed when the
// test ends.
func New(t testing.TB) (*Fake, string) {
	t.Helper()
	registerOnce.Do(func() { server.Register(Scheme, factory) })
	f := &Fake{sets: map[string]int{"genes": 2}}
	id := uuid.NewString()
	fakesMu.Lock()
	fakes[id] = f
	fakesMu.Unlock()
	t.Cleanup(func() {
		f.Release()
		fakesMu.Lock()
		delete(fakes, id)
		fakesMu.Unlock()
	})
	return f, Scheme + "://" + id
}

func factory(p server.Params, addr server.Address) (server.Backend, error) {
	fakesMu.Lock()
	f := fakes[addr.Host]
	fakesMu.Unlock()
	if f == nil {
		return nil, fmt.Errorf("servertest: no fake registered for %q", addr.Host)
	}
	return &backend{f: f}, nil
}

// FailOpen makes Open return err.
func (f *Fake) FailOpen(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErr = err
}

// FailInfo makes GetInfo return err.
func (f *Fake) FailInfo(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoErr = err
}

// FailSetContext makes SetContext return err.
func (f *Fake) FailSetContext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contextErr = err
}

// FailFeatures makes GetFeatures return err.
func (f *Fake) FailFeatures(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.featuresErr = err
}

// PanicOnLoad makes GetFeatures panic.
func (f *Fake) PanicOnLoad() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panicOnLoad = true
}

// Block makes GetFeatures wait until Release or cancellation.
func (f *Fake) Block() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.block == nil {
		f.block = make(chan struct{})
	}
}

// Release unblocks GetFeatures.
func (f *Fake) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.block != nil {
		close(f.block)
		f.block = nil
	}
}

// SetFeatures configures how many features each set yields per load.
func (f *Fake) SetFeatures(sets map[string]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = sets
}

// Counts returns how often Open, GetFeatures and Close ran.
func (f *Fake) Counts() (opens, loads, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.loads, f.closes
}

type backend struct {
	f  *Fake
	fc *feature.Context
}

func (b *backend) Open(ctx context.Context) error {
	b.f.mu.Lock()
	defer b.f.mu.Unlock()
	b.f.opens++
	return b.f.openErr
}

func (b *backend) Info(ctx context.Context) (server.Info, error) {
	b.f.mu.Lock()
	defer b.f.mu.Unlock()
	if b.f.infoErr != nil {
		return server.Info{}, b.f.infoErr
	}
	return server.Info{Protocol: Scheme, Database: "fake", Version: "1"}, nil
}

func (b *backend) Styles(ctx context.Context) (feature.StyleTable, error) {
	return nil, server.ErrUnsupported
}

func (b *backend) HaveModes() bool { return false }

func (b *backend) FeatureSets(ctx context.Context, requested []string) ([]string, error) {
	if len(requested) > 0 {
		return requested, nil
	}
	b.f.mu.Lock()
	defer b.f.mu.Unlock()
	out := make([]string, 0, len(b.f.sets))
	for s := range b.f.sets {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func (b *backend) SetContext(fc *feature.Context) error {
	b.f.mu.Lock()
	defer b.f.mu.Unlock()
	if b.f.contextErr != nil {
		return b.f.contextErr
	}
	b.fc = fc
	return nil
}

func (b *backend) Features(ctx context.Context, styles feature.StyleTable) error {
	b.f.mu.Lock()
	b.f.loads++
	block, err, boom := b.f.block, b.f.featuresErr, b.f.panicOnLoad
	sets := make(map[string]int, len(b.f.sets))
	for k, v := range b.f.sets {
		sets[k] = v
	}
	b.f.mu.Unlock()
	if boom {
		panic("servertest: scripted panic")
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	blk := b.fc.MasterBlock()
	seq := b.fc.Sequence
	for name, n := range sets {
		if !b.fc.Wants(name) {
			continue
		}
		set := blk.EnsureSet(name, "")
		for i := 0; i < n; i++ {
			start := seq.Start + i*10 + 1
			set.Add(&feature.Feature{
				Name:   fmt.Sprintf("%s-%d", name, i),
				Type:   "gene",
				Source: name,
				Span:   feature.Span{Start: start, End: start + 5},
				Strand: feature.StrandForward,
				Phase:  -1,
			})
		}
	}
	return nil
}

func (b *backend) ContextSequences(ctx context.Context) error {
	b.fc.MasterBlock().DNA = "acgt"
	return nil
}

func (b *backend) Sequences(ctx context.Context, names []string) (map[string]string, error) {
	return nil, server.ErrUnsupported
}

func (b *backend) Close() error {
	b.f.mu.Lock()
	defer b.f.mu.Unlock()
	b.f.closes++
	return nil
}
