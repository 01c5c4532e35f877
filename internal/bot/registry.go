package bot

import (
	"context"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/AceNexus/LineBot/internal/session"
)

// Registry holds the registered feature modules and routes messages,
// postbacks and dialog states to them. Registration happens once at
// startup; afterwards the registry is read-only and safe for concurrent
// use.
type Registry struct {
	handlers []Handler
	byState  map[session.State]StatefulHandler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		byState: make(map[session.State]StatefulHandler),
	}
}

// Register adds a module. Alias lookups check modules in registration
// order, so more specific modules register first.
func (r *Registry) Register(h Handler) {
	r.handlers = append(r.handlers, h)
	if sh, ok := h.(StatefulHandler); ok {
		for _, st := range sh.States() {
			r.byState[st] = sh
		}
	}
}

// HandlerFor returns the first module whose alias table matches text,
// or nil when no module claims it.
func (r *Registry) HandlerFor(text string) Handler {
	for _, h := range r.handlers {
		if h.CanHandle(text) {
			return h
		}
	}
	return nil
}

// DispatchMessage routes a command alias to its module.
func (r *Registry) DispatchMessage(ctx context.Context, conv, text string) []messaging_api.MessageInterface {
	if h := r.HandlerFor(text); h != nil {
		return h.HandleMessage(ctx, conv, text)
	}
	return nil
}

// DispatchPostback routes postback data to the module owning its prefix.
// The prefix is stripped before the module sees the data. Returns nil
// when no module claims the prefix.
func (r *Registry) DispatchPostback(ctx context.Context, conv, data string) []messaging_api.MessageInterface {
	for _, h := range r.handlers {
		prefix := h.PostbackPrefix()
		if prefix != "" && strings.HasPrefix(data, prefix) {
			return h.HandlePostback(ctx, conv, strings.TrimPrefix(data, prefix))
		}
	}
	return nil
}

// HandlerForState returns the module owning a dialog state, or nil for
// unowned states (including StateNormal).
func (r *Registry) HandlerForState(state session.State) StatefulHandler {
	return r.byState[state]
}

// GetHandler returns a module by name, or nil if not registered.
func (r *Registry) GetHandler(name string) Handler {
	for _, h := range r.handlers {
		if h.Name() == name {
			return h
		}
	}
	return nil
}
