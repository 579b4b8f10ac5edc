package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Paintersrp/tether/internal/config"
	"github.com/Paintersrp/tether/internal/runtime"
)

const defaultEventBuffer = 256

// Group supervises every worker of a manifest.
type Group struct {
	supervisors []*supervisor
	events      chan Event

	mu       sync.Mutex
	launched bool
	stopped  bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewGroup resolves a runtime for every worker in doc. Workers are supervised
// in name order.
func NewGroup(doc *config.Manifest, reg runtime.Registry) (*Group, error) {
	if doc == nil {
		return nil, errors.New("manifest is nil")
	}
	g := &Group{
		events: make(chan Event, defaultEventBuffer),
		done:   make(chan struct{}),
	}
	for _, name := range doc.WorkersSorted() {
		w := doc.Workers[name]
		rt, err := reg.Lookup(w.Runtime)
		if err != nil {
			return nil, fmt.Errorf("worker %s: %w", name, err)
		}
		g.supervisors = append(g.supervisors, newSupervisor(name, w, rt, g.events))
	}
	return g, nil
}

// Events returns the merged event stream of all workers. It is closed once
// every supervisor has finished.
func (g *Group) Events() <-chan Event {
	return g.events
}

// Start launches every worker and waits until each one has either started or
// permanently failed to start. The returned error joins the start failures;
// workers that did start keep running until Stop.
func (g *Group) Start(ctx context.Context) error {
	g.mu.Lock()
	switch {
	case g.stopped:
		g.mu.Unlock()
		return errors.New("group already stopped")
	case g.launched:
		g.mu.Unlock()
		return errors.New("group already started")
	}
	g.launched = true
	for _, sup := range g.supervisors {
		sup.Start(ctx)
	}
	g.mu.Unlock()
	go g.closeWhenDone()

	var errs []error
	for _, sup := range g.supervisors {
		if err := sup.AwaitStarted(ctx); err != nil {
			errs = append(errs, fmt.Errorf("worker %s: %w", sup.name, err))
		}
	}
	return errors.Join(errs...)
}

func (g *Group) closeWhenDone() {
	for _, sup := range g.supervisors {
		<-sup.done
	}
	g.closeOnce.Do(func() {
		close(g.events)
		close(g.done)
	})
}

// Wait blocks until every supervisor has finished and returns the joined
// terminal errors of failed workers.
func (g *Group) Wait(ctx context.Context) error {
	select {
	case <-g.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	var errs []error
	for _, sup := range g.supervisors {
		if err := sup.getRunErr(); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("worker %s: %w", sup.name, err))
		}
	}
	return errors.Join(errs...)
}

// Stop stops every worker concurrently. ctx bounds the graceful period; once
// it expires the remaining workers are killed.
func (g *Group) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	g.mu.Lock()
	g.stopped = true
	launched := g.launched
	g.mu.Unlock()
	if !launched {
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, sup := range g.supervisors {
		wg.Add(1)
		go func(sup *supervisor) {
			defer wg.Done()
			if err := sup.Stop(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("stop worker %s: %w", sup.name, err))
				mu.Unlock()
			}
		}(sup)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Workers returns the supervised worker names in order.
func (g *Group) Workers() []string {
	out := make([]string, 0, len(g.supervisors))
	for _, sup := range g.supervisors {
		out = append(out, sup.name)
	}
	return out
}
