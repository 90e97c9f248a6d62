package signaling

import "context"

// Bus is the narrow publish/subscribe surface the channel needs.
type Bus interface {
	Publish(ctx context.Context, topic string, msg Message) error
	// Subscribe returns once the subscription is live; messages published
	// after it returns are delivered.
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

type Subscription interface {
	C() <-chan Message
	Close() error
}
