package pkg

import (
	"context"
	"fmt"
	"time"

	"github.com/appetiteclub/apt/events"
	"github.com/nats-io/nats.go"
)

// StatusHandler is invoked whenever the relay connection is lost or regained.
// Terminals use it to flip their offline flag, re-announce themselves and
// trigger a reconciliation pass.
type StatusHandler func(connected bool)

// NATSRelay is the transport between terminals. It implements both
// events.Publisher and events.Subscriber over a single connection that
// reconnects indefinitely. Durability is not expected from the relay; the
// local store and mutation queue provide it.
type NATSRelay struct {
	conn     *nats.Conn
	onStatus StatusHandler
}

// NewNATSRelay connects to the relay. The name shows up in NATS monitoring
// and should be the terminal name.
func NewNATSRelay(url, name string, onStatus StatusHandler) (*NATSRelay, error) {
	r := &NATSRelay{onStatus: onStatus}

	opts := []nats.Option{
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, _ error) {
			r.notify(false)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			r.notify(true)
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	r.conn = conn
	return r, nil
}

func (r *NATSRelay) notify(connected bool) {
	if r.onStatus != nil {
		r.onStatus(connected)
	}
}

// Connected reports whether the relay link is currently up.
func (r *NATSRelay) Connected() bool {
	return r.conn != nil && r.conn.IsConnected()
}

func (r *NATSRelay) Publish(ctx context.Context, topic string, msg []byte) error {
	return r.conn.Publish(topic, msg)
}

func (r *NATSRelay) Subscribe(ctx context.Context, topic string, handler events.HandlerFunc) error {
	_, err := r.conn.Subscribe(topic, func(msg *nats.Msg) {
		_ = handler(ctx, msg.Data)
	})
	return err
}

func (r *NATSRelay) Close() error {
	r.conn.Close()
	return nil
}
