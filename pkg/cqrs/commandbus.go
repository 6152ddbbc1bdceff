package cqrs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/plaenen/purchasing/pkg/domain"
)

// DefaultCommandBus is an in-memory implementation of CommandBus.
type DefaultCommandBus struct {
	handlers   map[string]CommandHandler
	middleware []CommandMiddleware
	mu         sync.RWMutex
}

// NewCommandBus creates a new command bus instance.
func NewCommandBus() *DefaultCommandBus {
	return &DefaultCommandBus{
		handlers:   make(map[string]CommandHandler),
		middleware: make([]CommandMiddleware, 0),
	}
}

// Register registers a handler for a specific command type.
func (b *DefaultCommandBus) Register(commandType string, handler CommandHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[commandType]; exists {
		panic(fmt.Sprintf("handler already registered for command type: %s", commandType))
	}

	b.handlers[commandType] = handler
}

// Use adds middleware to the command processing pipeline.
// Middleware is executed in the order it was added (first added = outermost).
func (b *DefaultCommandBus) Use(middleware CommandMiddleware) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.middleware = append(b.middleware, middleware)
}

// Send sends a command to its registered handler.
func (b *DefaultCommandBus) Send(ctx context.Context, cmd *domain.CommandEnvelope) ([]*domain.Event, error) {
	if cmd == nil || cmd.Command == nil {
		return nil, domain.ErrInvalidCommand
	}

	commandType := cmd.CommandType()
	if commandType == "" {
		return nil, fmt.Errorf("%w: command type not specified", domain.ErrInvalidCommand)
	}

	b.mu.RLock()
	handler, exists := b.handlers[commandType]
	middleware := b.middleware
	b.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrCommandNotFound, commandType)
	}

	// Reverse order so the first added middleware is outermost.
	finalHandler := handler
	for i := len(middleware) - 1; i >= 0; i-- {
		finalHandler = middleware[i](finalHandler)
	}

	events, err := finalHandler.Handle(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("command handler failed: %w", err)
	}

	return events, nil
}

// RegisteredHandlers returns the registered command types in sorted order.
func (b *DefaultCommandBus) RegisteredHandlers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	types := make([]string, 0, len(b.handlers))
	for t := range b.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
