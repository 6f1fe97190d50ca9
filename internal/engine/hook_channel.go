package engine

import (
	"github.com/roach88/rehook/internal/ir"
)

// Channel subscribes a component to a named realtime channel:
// unsubscribed | subscribed. A channel-message event reaches every
// subscribed hook on that channel, each handler independently.
type Channel struct {
	rc        *RenderContext
	id        ir.HookID
	name      string
	onMessage func(payload ir.Value) error
}

func (c *Channel) hookID() ir.HookID { return c.id }

// UseChannel declares a channel hook.
func UseChannel(rc *RenderContext, name string, onMessage func(payload ir.Value) error, opts ...HookOption) *Channel {
	cfg := buildConfig(opts)
	id, fresh, err := rc.registerHook(ir.KindChannel, cfg)
	c := &Channel{rc: rc, id: id, name: name, onMessage: onMessage}
	if err != nil {
		return c
	}
	rc.bind(c)

	if name == "" {
		rc.fail(newRenderError(ErrCodeInvalidValue, id, rc.Path(), "channel name is empty"))
		return c
	}
	if _, ok := rc.store.Read(id); !ok || fresh {
		rc.write(id, ir.HookState{
			Kind:       ir.KindChannel,
			Value:      ir.Object{"channel": ir.String(name), "status": ir.String(statusUnsubscribed)},
			Persistent: cfg.persistent,
		})
	}
	return c
}

// ID returns the hook id.
func (c *Channel) ID() ir.HookID { return c.id }

// Subscribed reports whether the hook receives messages for its channel.
func (c *Channel) Subscribed() bool {
	st, _ := c.rc.store.Read(c.id)
	return statusOf(st) == statusSubscribed && fieldString(st, "channel") == c.name
}

// Subscribe starts delivery. Legal from render bodies and handlers.
func (c *Channel) Subscribe() error {
	if err := c.rc.requireActive(c.id, "Channel.Subscribe"); err != nil {
		return err
	}
	if c.Subscribed() {
		return nil
	}
	c.setStatus(statusSubscribed)
	c.rc.emit(ir.SubscribeChannel(c.id, c.name))
	return nil
}

// Unsubscribe stops delivery.
func (c *Channel) Unsubscribe() error {
	if err := c.rc.requireActive(c.id, "Channel.Unsubscribe"); err != nil {
		return err
	}
	st, _ := c.rc.store.Read(c.id)
	if statusOf(st) != statusSubscribed {
		return nil
	}
	c.setStatus(statusUnsubscribed)
	c.rc.emit(ir.UnsubscribeChannel(c.id, fieldString(st, "channel")))
	return nil
}

func (c *Channel) setStatus(status string) {
	st, _ := c.rc.store.Read(c.id)
	st.Kind = ir.KindChannel
	st.Value = ir.Object{"channel": ir.String(c.name), "status": ir.String(status)}
	c.rc.write(c.id, st)
}

// deliver applies one channel-message event.
func (c *Channel) deliver(index int, ev ir.Event) error {
	if c.onMessage == nil {
		return nil
	}
	payload := ev.Payload
	if payload == nil {
		payload = ir.Null{}
	}
	return c.rc.invoke(index, ev, c.id, func() error { return c.onMessage(payload) })
}
