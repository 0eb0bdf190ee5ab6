// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

// Package ingest consumes raw transport records from NATS JetStream and
// runs them through the record handler.
package ingest

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cropstream/internal/logging"
	"github.com/tomtom215/cropstream/internal/metrics"
)

// RecordHandler processes one raw transport record and returns its error
// count. *handler.Handler implements it.
type RecordHandler interface {
	HandleRecord(ctx context.Context, raw []byte) int
}

// MessageSource yields the messages of a subject.
type MessageSource interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// Consumer drains the raw subject into a RecordHandler.
//
// Every message is acked once handled. Failures are already reported as
// invalid envelopes on the output streams, so a redelivery would only
// duplicate output.
type Consumer struct {
	source  MessageSource
	topic   string
	handler RecordHandler
	logger  zerolog.Logger

	handled    atomic.Int64
	exceptions atomic.Int64
}

// NewConsumer creates a consumer of topic.
func NewConsumer(source MessageSource, topic string, h RecordHandler) *Consumer {
	return &Consumer{
		source:  source,
		topic:   topic,
		handler: h,
		logger:  logging.WithComponent("ingest"),
	}
}

// Serve consumes until ctx is done or the message channel closes.
func (c *Consumer) Serve(ctx context.Context) error {
	messages, err := c.source.Subscribe(ctx, c.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", c.topic, err)
	}
	c.logger.Info().Str("topic", c.topic).Msg("Consuming raw records")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			c.handle(msg)
		}
	}
}

func (c *Consumer) handle(msg *message.Message) {
	ctx := logging.ContextWithCorrelationID(msg.Context(), msg.UUID)
	n := c.handler.HandleRecord(ctx, msg.Payload)

	c.handled.Add(1)
	c.exceptions.Add(int64(n))
	metrics.RecordIngestMessage(n)
	if n > 0 {
		c.logger.Warn().
			Str("message_uuid", msg.UUID).
			Int("exceptions", n).
			Msg("Raw record processed with errors")
	}
	msg.Ack()
}

// Handled returns how many messages were consumed and the sum of their
// error counts.
func (c *Consumer) Handled() (messages, exceptions int64) {
	return c.handled.Load(), c.exceptions.Load()
}

// String names the consumer in the supervisor tree.
func (c *Consumer) String() string {
	return "ingest:" + c.topic
}
