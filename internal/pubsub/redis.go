package pubsub

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "flux:changed:"

// how long Subscribe waits for redis to confirm a new channel
const subscribeTimeout = 5 * time.Second

// Redis shares notifications between every process connected to the same redis.
// One redis subscription per process; redis channels are joined when the first
// local listener of a topic arrives and left when the last one goes. Subscribe
// returns only once redis confirmed the channel, so a Publish made right after
// it is never missed.
type Redis struct {
	client *redis.Client
	pubsub *redis.PubSub
	sugar  *zap.SugaredLogger
	ctx    context.Context
	cancel context.CancelFunc

	mutex  sync.Mutex
	local  map[string][]listener
	joined map[string]chan struct{} // closed once redis confirmed the channel
	nextID uint64
	done   chan struct{}
}

func NewRedis(client *redis.Client, sugar *zap.SugaredLogger) *Redis {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Redis{
		client: client,
		pubsub: client.Subscribe(ctx),
		sugar:  sugar,
		ctx:    ctx,
		cancel: cancel,
		local:  make(map[string][]listener),
		joined: make(map[string]chan struct{}),
		done:   make(chan struct{}),
	}
	go r.listen()
	return r
}

// listening to redis pub/sub messages to notify local listeners
func (r *Redis) listen() {
	defer close(r.done)

	msgCh := r.pubsub.ChannelWithSubscriptions()
	for {
		select {
		case <-r.ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			switch msg := msg.(type) {
			case *redis.Subscription:
				if msg.Kind == "subscribe" {
					r.confirm(strings.TrimPrefix(msg.Channel, keyPrefix))
				}
			case *redis.Message:
				r.notify(strings.TrimPrefix(msg.Channel, keyPrefix))
			}
		}
	}
}

func (r *Redis) confirm(topic string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	joined, ok := r.joined[topic]
	if !ok {
		return
	}
	select {
	case <-joined:
	default:
		close(joined)
	}
}

func (r *Redis) notify(topic string) {
	r.mutex.Lock()
	listeners := make([]listener, len(r.local[topic]))
	copy(listeners, r.local[topic])
	r.mutex.Unlock()

	for _, l := range listeners {
		l.fn()
	}
}

func (r *Redis) Subscribe(topic string, fn func()) (func(), error) {
	r.mutex.Lock()
	if len(r.local[topic]) == 0 {
		err := r.pubsub.Subscribe(r.ctx, keyPrefix+topic)
		if err != nil {
			r.mutex.Unlock()
			return nil, err
		}
		r.joined[topic] = make(chan struct{})
	}

	r.nextID++
	id := r.nextID
	r.local[topic] = append(r.local[topic], listener{id: id, fn: fn})
	joined := r.joined[topic]
	r.mutex.Unlock()

	timer := time.NewTimer(subscribeTimeout)
	defer timer.Stop()

	select {
	case <-joined:
		r.sugar.Debugf("Subscribed to redis channel %s", keyPrefix+topic)
	case <-timer.C:
		r.drop(topic, id)
		return nil, fmt.Errorf("redis did not confirm channel %s in time", keyPrefix+topic)
	case <-r.ctx.Done():
		r.drop(topic, id)
		return nil, r.ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { r.drop(topic, id) })
	}, nil
}

func (r *Redis) drop(topic string, id uint64) {
	err := r.unsubscribe(topic, id)
	if err != nil {
		r.sugar.Error(err)
	}
}

func (r *Redis) unsubscribe(topic string, id uint64) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	listeners := r.local[topic]
	for i := range listeners {
		if listeners[i].id == id {
			listeners[i] = listeners[len(listeners)-1]
			r.local[topic] = listeners[:len(listeners)-1]
			break
		}
	}

	if len(r.local[topic]) > 0 {
		return nil
	}

	delete(r.local, topic)
	delete(r.joined, topic)
	r.sugar.Debugf("Unsubscribed from redis channel %s", keyPrefix+topic)
	return r.pubsub.Unsubscribe(r.ctx, keyPrefix+topic)
}

func (r *Redis) Publish(ctx context.Context, topic string) error {
	return r.client.Publish(ctx, keyPrefix+topic, "changed").Err()
}

func (r *Redis) Close() error {
	r.cancel()
	err := r.pubsub.Close()
	<-r.done
	return err
}
