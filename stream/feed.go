package stream

import (
	"github.com/go-redis/redis/v7"
	"github.com/pkg/errors"

	"github.com/walletbase/walletd/cache"
)

// FeedMessage is one pub/sub push: the channel it arrived on and the raw
// payload.
type FeedMessage struct {
	Channel string
	Data    []byte
}

// Subscription is one live pub/sub subscription whose channel set can be
// resized while consuming.
type Subscription interface {
	Updates() <-chan FeedMessage
	Add(channels ...string) error
	Remove(channels ...string) error
	Close() error
}

// Feed hands out subscriptions. The redis implementation backs every
// connected stream client.
type Feed interface {
	Subscribe(channels ...string) (Subscription, error)
}

type redisFeed struct {
	cache *cache.Cacher
}

func NewFeed(cacher *cache.Cacher) Feed {
	return &redisFeed{cache: cacher}
}

func (f *redisFeed) Subscribe(channels ...string) (Subscription, error) {
	pubsub := f.cache.Subscribe(channels...)
	sub := &redisSubscription{
		pubsub:  pubsub,
		updates: make(chan FeedMessage, 64),
		done:    make(chan struct{}),
	}
	go sub.pump()
	return sub, nil
}

type redisSubscription struct {
	pubsub  *redis.PubSub
	updates chan FeedMessage
	done    chan struct{}
}

func (s *redisSubscription) pump() {
	defer close(s.updates)
	ch := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			select {
			case s.updates <- FeedMessage{Channel: msg.Channel, Data: []byte(msg.Payload)}:
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) Updates() <-chan FeedMessage { return s.updates }

func (s *redisSubscription) Add(channels ...string) error {
	if len(channels) == 0 {
		return nil
	}
	return errors.Wrap(s.pubsub.Subscribe(channels...), "feed subscribe")
}

func (s *redisSubscription) Remove(channels ...string) error {
	if len(channels) == 0 {
		return nil
	}
	return errors.Wrap(s.pubsub.Unsubscribe(channels...), "feed unsubscribe")
}

func (s *redisSubscription) Close() error {
	close(s.done)
	return s.pubsub.Close()
}
