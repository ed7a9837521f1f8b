package signbridge

import (
	"context"
	"time"
)

// DefaultPollInterval matches the browser frontend's polling loop.
const DefaultPollInterval = 500 * time.Millisecond

// Relay selects which log a Poller follows.
type Relay int

const (
	Transcriptions Relay = iota
	Gestures
)

// Poller follows a room's relay with a since cursor.
type Poller struct {
	Client   *Client
	RoomID   string
	Relay    Relay
	Interval time.Duration

	// Since is the highest id seen so far. Only newer messages are delivered.
	Since int64

	// OnError, if set, is called for failed polls. Polling continues.
	OnError func(error)
}

// Poll fetches messages newer than the cursor once and advances it.
func (p *Poller) Poll(ctx context.Context) ([]Message, error) {
	var msgs []Message
	var err error
	if p.Relay == Gestures {
		msgs, err = p.Client.Gestures(ctx, p.RoomID, p.Since)
	} else {
		msgs, err = p.Client.Transcriptions(ctx, p.RoomID, p.Since)
	}
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		if m.ID > p.Since {
			p.Since = m.ID
		}
	}
	return msgs, nil
}

// Run polls until ctx is done, calling fn for every new message in id order.
func (p *Poller) Run(ctx context.Context, fn func(Message)) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		msgs, err := p.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if p.OnError != nil {
				p.OnError(err)
			}
		}
		for _, m := range msgs {
			fn(m)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
