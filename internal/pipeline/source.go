package pipeline

import "context"

// Source yields raw alert payloads. Pop returns nil, nil when nothing arrived
// before its poll timeout.
type Source interface {
	Pop(ctx context.Context) ([]byte, error)
	Close() error
}
