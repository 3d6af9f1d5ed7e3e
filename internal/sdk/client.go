package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/event"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/event/topic"
)

// Permission gates one family of client operations.
type Permission string

const (
	// PermissionEmit allows Emit.
	PermissionEmit Permission = "emit"

	// PermissionListen allows On, Once, OnMessage and OnBroadcast.
	PermissionListen Permission = "listen"

	// PermissionMessage allows SendMessage.
	PermissionMessage Permission = "message"

	// PermissionBroadcast allows Broadcast.
	PermissionBroadcast Permission = "broadcast"
)

// AllPermissions returns every permission.
func AllPermissions() []Permission {
	return []Permission{PermissionEmit, PermissionListen, PermissionMessage, PermissionBroadcast}
}

// Event names used for app traffic.
const (
	AppPrefix      topic.Name = "app"
	MessageSuffix             = "message"
	BroadcastEvent topic.Name = "system:broadcast"
)

var (
	// ErrPermissionDenied is returned when the app lacks a permission.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidAppID is returned for empty or malformed app IDs.
	ErrInvalidAppID = errors.New("invalid app id")
)

// Emitter is the part of the engine a client needs.
type Emitter interface {
	Emit(ctx context.Context, name string, data any, opts ...event.EmitOption) error
	Bus() *event.Bus
}

// Message is the payload of SendMessage and Broadcast.
type Message struct {
	From string `json:"from"`
	To   string `json:"to,omitempty"`
	Body any    `json:"body"`
}

// Client is one app's view of the event system.
type Client struct {
	emitter Emitter
	appID   string
	scope   topic.Name
	perms   []Permission
	subs    *event.Subscriber
}

// NewClient creates a client for appID holding perms.
func NewClient(emitter Emitter, appID string, perms ...Permission) (*Client, error) {
	if !validAppID(appID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAppID, appID)
	}
	return &Client{
		emitter: emitter,
		appID:   appID,
		scope:   AppPrefix.Child(appID),
		perms:   slices.Clone(perms),
		subs:    event.NewSubscriber(emitter.Bus()),
	}, nil
}

func validAppID(id string) bool {
	n := topic.Name(id)
	return n.IsValid() && n.SegmentCount() == 1
}

// AppID returns the app identifier.
func (c *Client) AppID() string { return c.appID }

// Scope returns the prefix applied to the app's own events.
func (c *Client) Scope() topic.Name { return c.scope }

// Has reports whether the app holds p.
func (c *Client) Has(p Permission) bool {
	return slices.Contains(c.perms, p)
}

func (c *Client) require(p Permission, op string) error {
	if !c.Has(p) {
		return fmt.Errorf("%w: app %q needs %q for %s", ErrPermissionDenied, c.appID, p, op)
	}
	return nil
}

// Emit emits app:<id>:<name> with the app as source.
func (c *Client) Emit(ctx context.Context, name string, data any) error {
	if err := c.require(PermissionEmit, "emit"); err != nil {
		return err
	}
	return c.emitter.Emit(ctx, string(c.scope.Child(name)), data, event.WithSource(c.appID))
}

// On subscribes to app:<id>:<name>.
func (c *Client) On(name string, h event.HandlerFunc, opts ...event.SubscriptionOption) (event.Subscription, error) {
	if err := c.require(PermissionListen, "on"); err != nil {
		return nil, err
	}
	return c.subs.On(c.scope.Child(name), h, opts...)
}

// Once subscribes to a single delivery of app:<id>:<name>.
func (c *Client) Once(name string, h event.HandlerFunc, opts ...event.SubscriptionOption) (event.Subscription, error) {
	if err := c.require(PermissionListen, "once"); err != nil {
		return nil, err
	}
	return c.subs.Once(c.scope.Child(name), h, opts...)
}

// Off removes the app's subscriptions for name, or only subs when given.
func (c *Client) Off(name string, subs ...event.Subscription) int {
	return c.subs.Off(c.scope.Child(name), subs...)
}

// SendMessage emits app:<target>:message carrying msg.
func (c *Client) SendMessage(ctx context.Context, target string, msg any) error {
	if err := c.require(PermissionMessage, "send message"); err != nil {
		return err
	}
	if !validAppID(target) {
		return fmt.Errorf("%w: %q", ErrInvalidAppID, target)
	}
	name := AppPrefix.Child(target).Child(MessageSuffix)
	return c.emitter.Emit(ctx, string(name), Message{From: c.appID, To: target, Body: msg}, event.WithSource(c.appID))
}

// Broadcast emits system:broadcast carrying msg.
func (c *Client) Broadcast(ctx context.Context, msg any) error {
	if err := c.require(PermissionBroadcast, "broadcast"); err != nil {
		return err
	}
	return c.emitter.Emit(ctx, string(BroadcastEvent), Message{From: c.appID, Body: msg}, event.WithSource(c.appID))
}

// OnMessage subscribes to messages sent to this app.
func (c *Client) OnMessage(h func(ctx context.Context, msg Message) error) (event.Subscription, error) {
	if err := c.require(PermissionListen, "on message"); err != nil {
		return nil, err
	}
	return c.subs.On(c.scope.Child(MessageSuffix), messageHandler(h))
}

// OnBroadcast subscribes to broadcasts from other apps.
func (c *Client) OnBroadcast(h func(ctx context.Context, msg Message) error) (event.Subscription, error) {
	if err := c.require(PermissionListen, "on broadcast"); err != nil {
		return nil, err
	}
	return c.subs.On(BroadcastEvent, messageHandler(h),
		event.WithFilter(event.FilterExcludeSource(c.appID)))
}

// Subscriptions returns the number of live subscriptions the app holds.
func (c *Client) Subscriptions() int {
	return c.subs.Count()
}

// Close removes every subscription made through the client.
func (c *Client) Close() {
	c.subs.Close()
}

func messageHandler(h func(ctx context.Context, msg Message) error) event.HandlerFunc {
	return func(ctx context.Context, ev event.Event) error {
		msg, err := DecodeMessage(ev.Payload)
		if err != nil {
			return fmt.Errorf("%s: %w", ev.Name, err)
		}
		return h(ctx, msg)
	}
}

// DecodeMessage returns payload as a Message. Payloads rewritten by
// middleware arrive as JSON-shaped maps.
func DecodeMessage(payload any) (Message, error) {
	switch m := payload.(type) {
	case Message:
		return m, nil
	case *Message:
		if m == nil {
			return Message{}, errors.New("nil message")
		}
		return *m, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return msg, nil
}
