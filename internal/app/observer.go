package app

import (
	"context"
	"time"

	"github.com/kokistudios/xlmatch/internal/record"
	"github.com/kokistudios/xlmatch/internal/store"
)

// SlotObserver mirrors state changes into the persisted slots.
type SlotObserver struct {
	Slots   *store.Slots
	Timeout time.Duration
}

func (o SlotObserver) ctx() (context.Context, context.CancelFunc) {
	if o.Timeout <= 0 {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	return context.WithTimeout(context.Background(), o.Timeout)
}

func (o SlotObserver) OnReference(ref []record.Record) error {
	ctx, cancel := o.ctx()
	defer cancel()
	return o.Slots.SaveReference(ctx, ref)
}

func (o SlotObserver) OnResults(results []record.MatchedResult) error {
	ctx, cancel := o.ctx()
	defer cancel()
	return o.Slots.SaveResults(ctx, results)
}

func (o SlotObserver) OnStatus(s Status) error {
	ctx, cancel := o.ctx()
	defer cancel()
	return o.Slots.SaveStatus(ctx, string(s))
}

func (o SlotObserver) OnReset() error {
	ctx, cancel := o.ctx()
	defer cancel()
	return o.Slots.ClearState(ctx)
}

// Rehydrate restores a from the persisted slots. Undecodable slots are
// logged and skipped.
func (a *App) Rehydrate(ctx context.Context, slots *store.Slots) error {
	st, warnings, err := slots.LoadState(ctx)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		a.logger.Warn(w)
	}
	a.Restore(st)
	return nil
}
