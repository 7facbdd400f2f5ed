package events

import "context"

// NoopPublisher is a Publisher that does nothing (used when NATS is not configured).
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}

// Connect returns a NATS publisher for url, or a NoopPublisher when url is empty.
func Connect(url string) (Publisher, error) {
	if url == "" {
		return &NoopPublisher{}, nil
	}
	p, err := NewNATSPublisher(url)
	if err != nil {
		return nil, err
	}
	return p, nil
}
