package orchestrator

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	messageBufferSize = 64

	// MessageTTL is how long a UI should keep a message on screen.
	MessageTTL = 3 * time.Second
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// UIMessage is a transient notification for the user.
type UIMessage struct {
	Level Level
	Text  string
	Time  time.Time
}

func (m UIMessage) String() string {
	return fmt.Sprintf("[%s] %s", m.Level, m.Text)
}

// subscriber delivers messages in order without ever dropping one. The
// channel buffer takes the fast path; anything beyond it waits in queue and
// is handed over by pump as the reader catches up.
type subscriber struct {
	ch   chan UIMessage
	wake chan struct{}
	stop chan struct{}
	once sync.Once

	mu           sync.Mutex
	queue        []UIMessage
	closed       bool // no more messages are accepted
	unsubscribed bool
	stopped      bool
	exited       bool // pump has returned
	chClosed     bool
}

func newSubscriber() *subscriber {
	s := &subscriber{
		ch:   make(chan UIMessage, messageBufferSize),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *subscriber) push(msg UIMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if len(s.queue) == 0 {
		select {
		case s.ch <- msg:
			return
		default:
		}
	}
	s.queue = append(s.queue, msg)
	s.signal()
}

func (s *subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump moves queued messages into ch. The head of the queue is removed only
// after it was sent, so push never overtakes it.
func (s *subscriber) pump() {
	for {
		s.mu.Lock()
		if s.stopped {
			s.exited = true
			if s.unsubscribed && !s.chClosed {
				s.chClosed = true
				close(s.ch)
			}
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			if s.closed {
				s.exited = true
				s.chClosed = true
				close(s.ch)
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()

			select {
			case <-s.wake:
			case <-s.stop:
			}
			continue
		}
		msg := s.queue[0]
		s.mu.Unlock()

		select {
		case s.ch <- msg:
		case <-s.stop:
			continue
		}

		s.mu.Lock()
		if len(s.queue) > 0 {
			s.queue[0] = UIMessage{}
			s.queue = s.queue[1:]
		}
		s.mu.Unlock()
	}
}

// close stops accepting messages. ch is closed once the queue is delivered.
func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.unsubscribed = true
	if s.exited && !s.chClosed {
		s.chClosed = true
		close(s.ch)
	}
	s.mu.Unlock()
	s.signal()
}

// kill drops anything still queued and ends pump. What is already buffered
// in ch stays readable and ch is left open.
func (s *subscriber) kill() {
	s.mu.Lock()
	s.stopped = true
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	s.once.Do(func() { close(s.stop) })
}

type messageBus struct {
	subs []*subscriber
	mu   sync.RWMutex
}

func newMessageBus() *messageBus {
	return &messageBus{subs: make([]*subscriber, 0)}
}

func (b *messageBus) Subscribe() <-chan UIMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newSubscriber()
	b.subs = append(b.subs, sub)
	return sub.ch
}

// Unsubscribe stops delivery to ch. Messages published before the call are
// still delivered, then ch is closed, so a reader can range over it.
func (b *messageBus) Unsubscribe(ch <-chan UIMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.ch == ch {
			sub.close()
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
}

func (b *messageBus) publish(msg UIMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		sub.push(msg)
	}
}

// stop ends every delivery goroutine. Subscribers that never unsubscribed
// keep what was already buffered.
func (b *messageBus) stop() {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		sub.kill()
	}
}

func (o *Orchestrator) notify(level Level, format string, args ...any) {
	msg := UIMessage{Level: level, Text: fmt.Sprintf(format, args...), Time: time.Now()}

	switch level {
	case LevelError:
		slog.Warn("ui message", "level", level, "text", msg.Text)
	default:
		slog.Debug("ui message", "level", level, "text", msg.Text)
	}
	o.messages.publish(msg)
}

func (o *Orchestrator) info(format string, args ...any) { o.notify(LevelInfo, format, args...) }
func (o *Orchestrator) warn(format string, args ...any) { o.notify(LevelWarn, format, args...) }
func (o *Orchestrator) fail(format string, args ...any) { o.notify(LevelError, format, args...) }

// reject publishes err as an error message and returns it.
func (o *Orchestrator) reject(err error) error {
	o.fail("%s", capitalize(err.Error()))
	return err
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if c := s[0]; c >= 'a' && c <= 'z' {
		return string(c-'a'+'A') + s[1:]
	}
	return s
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
