// Copyright 2025 Nguyen Nhat Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package app

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/ngnhng/npymsgpack/api/ndarray"
	"github.com/ngnhng/npymsgpack/api/serde"
	"github.com/ngnhng/npymsgpack/internal/config"
	"github.com/ngnhng/npymsgpack/internal/natz"
)

var ErrMismatch = errors.New("round trip changed the value")

// Scenario is one value pushed through pack and unpack.
type Scenario struct {
	Name  string
	Value any
}

// Result records the packed bytes and the value recovered from them.
type Result struct {
	Name   string
	Packed []byte
	Value  any
}

type Options struct {
	// Publish sends every scenario value to the configured NATS subject.
	Publish bool
	// Subscribe logs every value received on the subject until ctx is done.
	Subscribe bool
}

// NewSerde builds the serde described by cfg.
func NewSerde(cfg *config.Config) (*serde.MsgpackSerde, error) {
	table := serde.DefaultTable()
	if tag := cfg.ExtTag(); tag != serde.NDArrayTag {
		var err error
		table, err = serde.NewTable(serde.NDArrayExtension(tag))
		if err != nil {
			return nil, err
		}
	}
	return serde.NewMsgpackSerde(
		serde.WithTable(table),
		serde.WithMaxExtLen(cfg.Serde.MaxExtSize),
		serde.WithSortedMapKeys(cfg.Serde.SortMapKeys),
	), nil
}

// DefaultScenarios returns a 3x3 grid of 0..8, an empty float32 array, and a
// plain integer slice that never reaches the extension hook.
func DefaultScenarios() ([]Scenario, error) {
	flat, err := ndarray.Arange(ndarray.Int64, 9)
	if err != nil {
		return nil, err
	}
	grid, err := flat.Reshape(3, 3)
	if err != nil {
		return nil, err
	}
	empty, err := ndarray.Zeros(ndarray.Float32, 0)
	if err != nil {
		return nil, err
	}
	return []Scenario{
		{Name: "grid", Value: grid},
		{Name: "empty", Value: empty},
		{Name: "native", Value: []int{1, 2, 3}},
	}, nil
}

func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) error {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := NewSerde(cfg)
	if err != nil {
		return fmt.Errorf("failed to build serde: %w", err)
	}
	scenarios, err := DefaultScenarios()
	if err != nil {
		return err
	}

	if _, err := RunScenarios(ctx, s, logger, scenarios); err != nil {
		return err
	}
	if !opts.Publish && !opts.Subscribe {
		return nil
	}

	conn, err := natz.Connect(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Drain(); err != nil {
			logger.Warn("failed to drain NATS connection", "error", err)
			conn.Close()
		}
	}()

	if opts.Subscribe {
		if _, err := natz.Subscribe(conn, cfg.NATS.Subject, cfg.NATS.Queue, s, LogDeliveries(ctx, logger)); err != nil {
			return err
		}
		logger.InfoContext(ctx, "listening", "subject", cfg.NATS.Subject, "queue", cfg.NATS.Queue)
	}
	if opts.Publish {
		if err := publish(ctx, conn, cfg, s, logger, scenarios); err != nil {
			return err
		}
	}
	if opts.Subscribe {
		<-ctx.Done()
	}
	return nil
}

// LogDeliveries returns a delivery callback that logs each unpacked value.
func LogDeliveries(ctx context.Context, logger *slog.Logger) func(natz.Delivery) {
	return func(d natz.Delivery) {
		if d.Err != nil {
			logger.WarnContext(ctx, "failed to unpack message", "subject", d.Subject, "id", d.ID, "error", d.Err)
			return
		}
		attrs := []any{"subject", d.Subject, "id", d.ID, "value", fmt.Sprint(d.Value)}
		if arr, ok := d.Value.(*ndarray.Array); ok {
			attrs = append(attrs, "dtype", arr.DType().String(), "shape", ndarray.FormatShape(arr.Shape()))
		}
		logger.InfoContext(ctx, "received", attrs...)
	}
}

// RunScenarios round-trips every scenario concurrently and returns the
// results in scenario order.
func RunScenarios(ctx context.Context, s *serde.MsgpackSerde, logger *slog.Logger, scenarios []Scenario) ([]Result, error) {
	results := make([]Result, len(scenarios))
	g, gCtx := errgroup.WithContext(ctx)
	for i, sc := range scenarios {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			res, err := roundTrip(s, sc)
			if err != nil {
				return fmt.Errorf("scenario %s: %w", sc.Name, err)
			}
			results[i] = res
			logger.InfoContext(gCtx, "packed data", "scenario", sc.Name, "bytes", len(res.Packed), "hex", hex.EncodeToString(res.Packed))
			logger.InfoContext(gCtx, "unpacked object", "scenario", sc.Name, "value", fmt.Sprint(res.Value))
			if arr, ok := res.Value.(*ndarray.Array); ok {
				logger.DebugContext(gCtx, "object data", "scenario", sc.Name, "data", hex.EncodeToString(arr.Bytes()))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func roundTrip(s *serde.MsgpackSerde, sc Scenario) (Result, error) {
	packed, err := s.SerializeBinary(sc.Value)
	if err != nil {
		return Result{}, err
	}
	target := reflect.New(reflect.TypeOf(sc.Value))
	if err := s.DeserializeBinary(packed, target.Interface()); err != nil {
		return Result{}, err
	}
	got := target.Elem().Interface()
	if !sameValue(sc.Value, got) {
		return Result{}, fmt.Errorf("%w: sent %v, got %v", ErrMismatch, sc.Value, got)
	}
	return Result{Name: sc.Name, Packed: packed, Value: got}, nil
}

func sameValue(a, b any) bool {
	if x, ok := a.(*ndarray.Array); ok {
		y, ok := b.(*ndarray.Array)
		return ok && x.Equal(y)
	}
	return reflect.DeepEqual(a, b)
}

func publish(ctx context.Context, conn *natz.Connection, cfg *config.Config, s serde.BinarySerde, logger *slog.Logger, scenarios []Scenario) error {
	opts := []natz.PublisherOption{natz.WithLogger(logger)}
	if cfg.NATS.Stream != "" {
		if _, err := conn.EnsureStream(ctx, jetstream.StreamConfig{
			Name:     cfg.NATS.Stream,
			Subjects: []string{cfg.NATS.Subject},
			Storage:  jetstream.FileStorage,
		}); err != nil {
			return fmt.Errorf("failed to ensure stream: %w", err)
		}
		js, err := conn.JS()
		if err != nil {
			return err
		}
		opts = append(opts, natz.WithJetStream(js))
	}

	pub := natz.NewPublisher(conn, cfg.NATS.Subject, s, opts...)
	for _, sc := range scenarios {
		id, err := pub.Publish(ctx, sc.Value)
		if err != nil {
			return fmt.Errorf("failed to publish %s: %w", sc.Name, err)
		}
		logger.InfoContext(ctx, "published", "scenario", sc.Name, "subject", cfg.NATS.Subject, "id", id)
	}
	return nil
}
