package ledger

import (
	"context"

	"github.com/tipbot/ledger/internal/domain"
)

// Observer receives post-commit events. Notify must not block for long;
// failures stay inside the observer.
type Observer interface {
	Notify(ctx context.Context, event domain.Event)
}

type ObserverFunc func(ctx context.Context, event domain.Event)

func (f ObserverFunc) Notify(ctx context.Context, event domain.Event) {
	f(ctx, event)
}

type Observers []Observer

func (o Observers) Notify(ctx context.Context, event domain.Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Notify(ctx, event)
		}
	}
}
