package console

import (
	"context"
	"strconv"
)

// ServiceID names the subsystem a typed command targets. Zero is reserved.
type ServiceID uint16

func (id ServiceID) String() string {
	return "service." + strconv.FormatUint(uint64(id), 10)
}

// Subscription is a handler bound to a ServiceID. It must implement
// TypedHandler, TextHandler, or both; the capability set is discovered at
// registration.
//
// Handlers are shared by every session and may be invoked concurrently.
type Subscription any

// TypedHandler processes typed commands addressed to its ServiceID. A nil
// response writes nothing back.
type TypedHandler interface {
	HandleTyped(ctx context.Context, payload []byte) ([]byte, error)
}

// TextHandler is offered free-form text commands. Returning accepted=false
// passes the command on to the next text handler.
type TextHandler interface {
	HandleText(ctx context.Context, text []byte) (response []byte, accepted bool, err error)
}

// Named is optionally implemented to label a subscription in logs and
// service listings.
type Named interface {
	Name() string
}

type TypedFunc func(ctx context.Context, payload []byte) ([]byte, error)

func (f TypedFunc) HandleTyped(ctx context.Context, payload []byte) ([]byte, error) {
	return f(ctx, payload)
}

type TextFunc func(ctx context.Context, text []byte) ([]byte, bool, error)

func (f TextFunc) HandleText(ctx context.Context, text []byte) ([]byte, bool, error) {
	return f(ctx, text)
}

// Binding pairs a ServiceID with its subscription. Bindings keep their
// order: text commands are offered in binding order.
type Binding struct {
	ID           ServiceID
	Subscription Subscription
}

// Bind is shorthand for a Binding literal.
func Bind(id ServiceID, sub Subscription) Binding {
	return Binding{ID: id, Subscription: sub}
}
