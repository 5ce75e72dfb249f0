// Package pubsub fans out "this collection changed" notifications to the live
// queries watching it, inside one process or across processes through redis.
package pubsub

import "context"

type Bus interface {
	Publish(ctx context.Context, topic string) error
	// Subscribe calls fn after every Publish on topic until the returned cancel
	// function is called.
	Subscribe(topic string, fn func()) (cancel func(), err error)
	Close() error
}
