package protocol

import (
	"context"
	"io"
)

// Feeder produces records. The EoF convention follows that of io.Reader:
// it can either return `records, EoF` or `records, nil` followed by
// `nil/{}, EoF`.
type Feeder interface {
	Feed(ctx context.Context) (recs Records, err error)
}

type FeedCloser interface {
	Feeder
	io.Closer
}

// Drainer consumes records.
type Drainer interface {
	Drain(ctx context.Context, recs Records) error
}

type DrainCloser interface {
	Drainer
	io.Closer
}

type FeedDrainCloser interface {
	Feeder
	Drainer
	io.Closer
}

// Relay moves one batch from the feeder to the drainer. Records returned
// together with an error are still drained.
func Relay(ctx context.Context, feeder Feeder, drainer Drainer) error {
	recs, err := feeder.Feed(ctx)
	if err != nil {
		if len(recs) > 0 {
			if derr := drainer.Drain(ctx, recs); derr != nil {
				return derr
			}
		}
		return err
	}
	return drainer.Drain(ctx, recs)
}

// Pump relays until either side fails (typically with io.EOF) or the
// context is done.
func Pump(ctx context.Context, feeder Feeder, drainer Drainer) (err error) {
	for err == nil && ctx.Err() == nil {
		err = Relay(ctx, feeder, drainer)
	}
	if err == nil {
		err = ctx.Err()
	}
	return
}
