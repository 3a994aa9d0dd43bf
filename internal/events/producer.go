package events

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

var (
	ErrClosed     = errors.New("producer closed")
	ErrBufferFull = errors.New("producer buffer full")
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer queues envelopes in memory and writes them from one goroutine so
// request handlers never wait on the broker.
type Producer struct {
	w     messageWriter
	inbox chan kafka.Message
	done  chan struct{}

	mu      sync.RWMutex
	closed  bool
	started bool
}

func NewProducer(brokers []string, topic string, buf int) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}, buf)
}

func newProducer(w messageWriter, buf int) *Producer {
	if buf <= 0 {
		buf = 256
	}
	return &Producer{
		w:     w,
		inbox: make(chan kafka.Message, buf),
		done:  make(chan struct{}),
	}
}

func (p *Producer) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	go p.loop()
}

func (p *Producer) loop() {
	defer close(p.done)
	for m := range p.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := p.w.WriteMessages(ctx, m); err != nil {
			log.Printf("[events] write failed key=%s err=%v", m.Key, err)
		}
		cancel()
	}
}

func (p *Producer) Publish(ctx context.Context, key string, env Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Time:    env.OccurredAt,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(env.EventType)}},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBufferFull
	}
}

// Close stops intake, flushes what is queued, and closes the writer.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.inbox)
	started := p.started
	p.mu.Unlock()

	if started {
		<-p.done
	}
	return p.w.Close()
}
