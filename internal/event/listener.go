package event

import (
	"context"
	"log/slog"
)

type Handler func(ctx context.Context, e Event) error

var events = make(chan Event, 64)

// Send queues an event for the listener. It never blocks; when the buffer is
// full the event is dropped, since notifications must not stall a flow.
func Send(e Event) {
	select {
	case events <- e:
	default:
	}
}

type Listener struct {
	logger   *slog.Logger
	handlers []Handler
}

func NewListener(logger *slog.Logger) *Listener {
	return &Listener{logger: logger}
}

func (l *Listener) Register(h Handler) {
	l.handlers = append(l.handlers, h)
}

// Listen dispatches queued events to every registered handler until the
// context is cancelled, then drains whatever is still buffered.
func (l *Listener) Listen(ctx context.Context) error {
	for {
		select {
		case e := <-events:
			l.dispatch(ctx, e)
		case <-ctx.Done():
			for {
				select {
				case e := <-events:
					l.dispatch(context.Background(), e)
				default:
					return nil
				}
			}
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, e Event) {
	for _, h := range l.handlers {
		if err := h(ctx, e); err != nil {
			l.logger.Error("error running event handler", slog.Any("error", err))
		}
	}
}
