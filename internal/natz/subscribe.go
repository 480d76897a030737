package natz

import (
	"github.com/nats-io/nats.go"

	"github.com/ngnhng/npymsgpack/api/serde"
)

// Delivery is one received message after unpacking. Err is set when the
// payload could not be unpacked; Value is then nil.
type Delivery struct {
	ID      string
	Subject string
	Value   any
	Err     error
}

// Handler adapts fn into a nats.MsgHandler that unpacks each payload with s.
func Handler(s serde.BinarySerde, fn func(Delivery)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		d := Delivery{
			ID:      msg.Header.Get(nats.MsgIdHdr),
			Subject: msg.Subject,
		}
		var v any
		if err := s.DeserializeBinary(msg.Data, &v); err != nil {
			d.Err = err
		} else {
			d.Value = v
		}
		fn(d)
	}
}

// Subscribe delivers every packed message published on subject to fn. A
// non-empty queue joins that queue group, so each message reaches one member.
func Subscribe(conn *Connection, subject, queue string, s serde.BinarySerde, fn func(Delivery)) (*nats.Subscription, error) {
	if queue != "" {
		return conn.QueueSubscribe(subject, queue, Handler(s, fn))
	}
	return conn.SubscribeAsync(subject, Handler(s, fn))
}
