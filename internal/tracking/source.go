package tracking

import (
	"context"
	"errors"
)

var errSourceClosed = errors.New("fix stream closed")

// ChanSource adapts channels to a FixSource. A value on Errs, or a closed
// Fixes channel, ends the subscription.
type ChanSource struct {
	Fixes <-chan Fix
	Errs  <-chan error
}

func (s ChanSource) Next(ctx context.Context) (Fix, error) {
	select {
	case <-ctx.Done():
		return Fix{}, ctx.Err()
	case err := <-s.Errs:
		if err == nil {
			err = errSourceClosed
		}
		return Fix{}, err
	case fix, ok := <-s.Fixes:
		if !ok {
			return Fix{}, errSourceClosed
		}
		return fix, nil
	}
}
