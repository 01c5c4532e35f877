// Package bot contains the conversation engine: the handler interfaces the
// feature modules implement, the registry that routes to them, and the
// processor that turns LINE webhook events into replies.
package bot

import (
	"context"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/AceNexus/LineBot/internal/session"
)

// Handler is implemented by every feature module. A module owns a set of
// command aliases (matched by CanHandle) and a postback namespace.
type Handler interface {
	// Name identifies the module in logs and registry lookups.
	Name() string

	// PostbackPrefix is the namespace prefix for this module's postback
	// data, including the trailing split character (e.g. "news$").
	// Empty means the module receives no postbacks.
	PostbackPrefix() string

	// CanHandle reports whether text is one of the module's command
	// aliases. Matching is done on sanitized text.
	CanHandle(text string) bool

	// HandleMessage processes a command alias for a conversation and
	// returns the reply messages (at most 5 per LINE API).
	HandleMessage(ctx context.Context, conv, text string) []messaging_api.MessageInterface

	// HandlePostback processes postback data for a conversation. The
	// module prefix has already been stripped.
	//
	// Postback data uses "$"-separated fields ("topic$3$5"). There is no
	// escaping, so field values must never contain the split character.
	HandlePostback(ctx context.Context, conv, data string) []messaging_api.MessageInterface
}

// StatefulHandler is a Handler that owns one or more dialog states. While a
// conversation is in one of those states, free text routes to HandleState
// instead of the alias table.
type StatefulHandler interface {
	Handler

	// States lists the dialog states this module owns.
	States() []session.State

	// HandleState processes free text while the conversation is in one of
	// the module's states. The module decides whether the state advances,
	// repeats or resets.
	HandleState(ctx context.Context, conv string, state session.State, text string) []messaging_api.MessageInterface
}
