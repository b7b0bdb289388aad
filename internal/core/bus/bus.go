// Package bus is the in-process message dispatcher. Within one request every
// command and event runs synchronously on the caller's goroutine and shares
// one store transaction; events marked external are additionally staged for
// the outbox.
package bus

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// CommandFunc handles one command type. Exactly one per type.
type CommandFunc func(*Context, any) (any, error)

// EventFunc reacts to one event type. Any number per type, run in
// registration order.
type EventFunc func(*Context, any) error

// Bus holds the dispatch tables. Registration happens once at startup;
// dispatch is read-only afterwards.
type Bus struct {
	mu       sync.Mutex
	commands map[reflect.Type]CommandFunc
	events   map[reflect.Type][]EventFunc
	log      *zap.Logger
}

func New(log *zap.Logger) *Bus {
	return &Bus{
		commands: make(map[reflect.Type]CommandFunc),
		events:   make(map[reflect.Type][]EventFunc),
		log:      log,
	}
}

// HandleCommand registers the single handler for command type T. A second
// registration for the same type is a programming error.
func HandleCommand[T any](b *Bus, fn func(*Context, T) (any, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	if _, dup := b.commands[t]; dup {
		panic(fmt.Sprintf("bus: duplicate command handler for %s", t))
	}
	b.commands[t] = func(c *Context, msg any) (any, error) {
		return fn(c, msg.(T))
	}
}

// SubscribeEvent registers a handler for event type T.
func SubscribeEvent[T any](b *Bus, fn func(*Context, T) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.events[t] = append(b.events[t], func(c *Context, msg any) error {
		return fn(c, msg.(T))
	})
}

func (b *Bus) command(msg any) (CommandFunc, error) {
	fn, ok := b.commands[reflect.TypeOf(msg)]
	if !ok {
		return nil, fmt.Errorf("bus: no handler for command %T", msg)
	}
	return fn, nil
}

func (b *Bus) subscribers(msg any) []EventFunc {
	return b.events[reflect.TypeOf(msg)]
}
