package natz

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/ngnhng/npymsgpack/api/ndarray"
	"github.com/ngnhng/npymsgpack/api/serde"
)

type fakeCore struct {
	mu   sync.Mutex
	msgs []*nats.Msg
	err  error
}

func (f *fakeCore) PublishMsg(m *nats.Msg) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, m)
	return nil
}

type fakeStream struct {
	msgs []*nats.Msg
}

func (f *fakeStream) PublishMsg(_ context.Context, m *nats.Msg, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.msgs = append(f.msgs, m)
	return &jetstream.PubAck{Stream: "ARRAYS", Sequence: uint64(len(f.msgs))}, nil
}

func testPublisher(core corePublisher) *Publisher {
	return &Publisher{
		core:    core,
		serde:   serde.NewMsgpackSerde(),
		subject: "arrays.test",
		logger:  slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	}
}

func TestPublisher_Publish(t *testing.T) {
	core := &fakeCore{}
	p := testPublisher(core)

	arr, err := ndarray.Arange(ndarray.Int64, 9)
	if err != nil {
		t.Fatal(err)
	}
	grid, _ := arr.Reshape(3, 3)

	id, err := p.Publish(context.Background(), grid)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(core.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(core.msgs))
	}

	msg := core.msgs[0]
	if msg.Subject != "arrays.test" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if got := msg.Header.Get(nats.MsgIdHdr); got != id {
		t.Errorf("Nats-Msg-Id = %q, want %q", got, id)
	}
	if got := msg.Header.Get(ContentTypeHeader); got != ContentType {
		t.Errorf("Content-Type = %q", got)
	}
	u, err := uuid.FromString(id)
	if err != nil || u.Version() != uuid.V7 {
		t.Errorf("message id %q is not a UUIDv7 (%v)", id, err)
	}

	var got *ndarray.Array
	if err := serde.NewMsgpackSerde().DeserializeBinary(msg.Data, &got); err != nil {
		t.Fatalf("payload does not unpack: %v", err)
	}
	if !got.Equal(grid) {
		t.Errorf("payload = %v, want %v", got, grid)
	}
}

func TestPublisher_UniqueIDs(t *testing.T) {
	core := &fakeCore{}
	p := testPublisher(core)

	seen := make(map[string]bool)
	for i := range 50 {
		id, err := p.Publish(context.Background(), i)
		if err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate message id %s", id)
		}
		seen[id] = true
	}
}

func TestPublisher_JetStream(t *testing.T) {
	core := &fakeCore{}
	stream := &fakeStream{}
	p := testPublisher(core)
	p.stream = stream

	id, err := p.Publish(context.Background(), []int{1, 2, 3})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(core.msgs) != 0 || len(stream.msgs) != 1 {
		t.Fatalf("expected JetStream publish only, core=%d stream=%d", len(core.msgs), len(stream.msgs))
	}
	if got := stream.msgs[0].Header.Get(nats.MsgIdHdr); got != id {
		t.Errorf("Nats-Msg-Id = %q, want %q", got, id)
	}
}

func TestPublisher_Errors(t *testing.T) {
	publishErr := errors.New("connection closed")

	tests := []struct {
		name    string
		setup   func(p *Publisher, core *fakeCore)
		ctx     func() context.Context
		value   any
		wantErr error
	}{
		{
			name:    "unknown type",
			value:   complex(1, 2),
			wantErr: serde.ErrUnknownType,
		},
		{
			name:    "publish failure",
			setup:   func(_ *Publisher, core *fakeCore) { core.err = publishErr },
			value:   1,
			wantErr: publishErr,
		},
		{
			name: "canceled context",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			value:   1,
			wantErr: context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core := &fakeCore{}
			p := testPublisher(core)
			if tt.setup != nil {
				tt.setup(p, core)
			}
			ctx := context.Background()
			if tt.ctx != nil {
				ctx = tt.ctx()
			}
			if _, err := p.Publish(ctx, tt.value); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Publish() error = %v, want %v", err, tt.wantErr)
			}
			if len(core.msgs) != 0 {
				t.Errorf("no message should be sent, got %d", len(core.msgs))
			}
		})
	}

	p := testPublisher(&fakeCore{})
	p.subject = ""
	if _, err := p.Publish(context.Background(), 1); err == nil {
		t.Error("Publish() without subject expected error")
	}
}

func TestHandler(t *testing.T) {
	s := serde.NewMsgpackSerde()
	arr, _ := ndarray.FromSlice([]float32{1, 2, 3})
	data, err := s.SerializeBinary(map[string]any{"weights": arr})
	if err != nil {
		t.Fatal(err)
	}

	var got []Delivery
	h := Handler(s, func(d Delivery) { got = append(got, d) })

	msg := nats.NewMsg("arrays.in")
	msg.Header.Set(nats.MsgIdHdr, "id-1")
	msg.Data = data
	h(msg)
	h(&nats.Msg{Subject: "arrays.in", Data: []byte{0xc7, 0x02, 0x00, 0x93, 'X'}})

	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}

	first := got[0]
	if first.Err != nil {
		t.Fatalf("unexpected error %v", first.Err)
	}
	if first.ID != "id-1" || first.Subject != "arrays.in" {
		t.Errorf("unexpected delivery metadata %+v", first)
	}
	weights := first.Value.(map[string]any)["weights"].(*ndarray.Array)
	if !weights.Equal(arr) {
		t.Errorf("weights = %v, want %v", weights, arr)
	}

	second := got[1]
	if second.Err == nil || second.Value != nil {
		t.Errorf("corrupt payload should fail, got %+v", second)
	}
	if second.ID != "" {
		t.Errorf("message without headers should have no id, got %q", second.ID)
	}
}

type fakeSub struct {
	subject, queue string
	handler        nats.MsgHandler
}

func (f *fakeSub) Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error) {
	f.subject, f.handler = subj, cb
	return &nats.Subscription{Subject: subj}, nil
}

func (f *fakeSub) QueueSubscribe(subj, queue string, cb nats.MsgHandler) (*nats.Subscription, error) {
	f.queue = queue
	sub, err := f.Subscribe(subj, cb)
	sub.Queue = queue
	return sub, err
}

func TestSubscribe(t *testing.T) {
	s := serde.NewMsgpackSerde()
	arr, _ := ndarray.Arange(ndarray.Int16, 4)
	data, err := s.SerializeBinary(arr)
	if err != nil {
		t.Fatal(err)
	}

	for _, queue := range []string{"", "workers"} {
		t.Run("queue="+queue, func(t *testing.T) {
			fake := &fakeSub{}
			conn := &Connection{sub: fake}

			var got []Delivery
			sub, err := Subscribe(conn, "arrays.in", queue, s, func(d Delivery) { got = append(got, d) })
			if err != nil {
				t.Fatalf("Subscribe() error = %v", err)
			}
			if sub.Subject != "arrays.in" || sub.Queue != queue {
				t.Errorf("subscription = %s/%s", sub.Subject, sub.Queue)
			}
			if fake.subject != "arrays.in" || fake.queue != queue {
				t.Errorf("subscribed to %s in queue %q", fake.subject, fake.queue)
			}

			fake.handler(&nats.Msg{Subject: "arrays.in", Data: data})
			if len(got) != 1 || got[0].Err != nil {
				t.Fatalf("unexpected deliveries %+v", got)
			}
			if a, ok := got[0].Value.(*ndarray.Array); !ok || !a.Equal(arr) {
				t.Errorf("delivered %v, want %v", got[0].Value, arr)
			}
		})
	}
}

type testConfig struct{}

func (testConfig) Endpoint() string                 { return "nats://127.0.0.1:4222" }
func (testConfig) NATSMaxReconnects() int           { return 5 }
func (testConfig) NATSReconnectWait() time.Duration { return 3 * time.Second }
func (testConfig) NATSDrainTimeout() time.Duration  { return 10 * time.Second }
func (testConfig) NATSPingInterval() time.Duration  { return time.Minute }
func (testConfig) NATSMaxPingsOut() int             { return 4 }
func (testConfig) NATSClientName() string           { return "" }

func TestOptions(t *testing.T) {
	o := nats.GetDefaultOptions()
	for _, opt := range options(testConfig{}, slog.Default()) {
		if err := opt(&o); err != nil {
			t.Fatalf("option failed: %v", err)
		}
	}

	if o.Name != "npypack" {
		t.Errorf("Name = %q, want npypack", o.Name)
	}
	if o.MaxReconnect != 5 || o.ReconnectWait != 3*time.Second {
		t.Errorf("reconnect settings = %d/%v", o.MaxReconnect, o.ReconnectWait)
	}
	if o.DrainTimeout != 10*time.Second || o.PingInterval != time.Minute || o.MaxPingsOut != 4 {
		t.Errorf("timing settings = %v/%v/%d", o.DrainTimeout, o.PingInterval, o.MaxPingsOut)
	}
	if o.ReconnectedCB == nil || o.DisconnectedErrCB == nil || o.ClosedCB == nil {
		t.Error("connection callbacks are not installed")
	}
}

func TestConnect_NilInputs(t *testing.T) {
	if _, err := Connect(nil, nil); err == nil {
		t.Error("Connect(nil) expected error")
	}
	if _, err := Wrap(nil); err == nil {
		t.Error("Wrap(nil) expected error")
	}
}
