// Package bridge copies rover comms messages from the broker into the
// reading log, one synchronous insert per message.
package bridge

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sith-robotics/roverlog/pkg/metrics"
	"github.com/sith-robotics/roverlog/pkg/store"
)

// TopicPrefix identifies topics this relay records. The subscription
// filter (MQTT_TOPIC) may be broader; anything outside this prefix is
// skipped. The prefix is a fixed literal, independent of the configured
// filter, matching the publisher contract.
const TopicPrefix = "roverCommsLog/"

// Handler validates, transforms, and persists one message at a time.
// It is registered with the broker session and must never let an error
// escape back into the network loop.
type Handler struct {
	store  store.Inserter
	logger *zap.Logger
}

// New constructs a Handler writing through the given store.
func New(st store.Inserter, logger *zap.Logger) *Handler {
	return &Handler{store: st, logger: logger}
}

// HandleMessage processes one delivered message: filter by prefix,
// extract the device id from the topic suffix, decode the payload as
// UTF-8 text, and insert. Every failure path discards the message and
// logs; nothing propagates to the caller.
func (h *Handler) HandleMessage(topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic while handling message",
				zap.String("topic", topic),
				zap.Any("panic", r))
			metrics.MessagesDiscarded.WithLabelValues("panic").Inc()
		}
	}()

	metrics.MessagesReceived.Inc()

	if !strings.HasPrefix(topic, TopicPrefix) {
		h.logger.Debug("skipping non-matching topic", zap.String("topic", topic))
		metrics.MessagesDiscarded.WithLabelValues("topic_mismatch").Inc()
		return
	}

	deviceID := strings.TrimPrefix(topic, TopicPrefix)
	if deviceID == "" {
		h.logger.Warn("skipping message with empty device id", zap.String("topic", topic))
		metrics.MessagesDiscarded.WithLabelValues("empty_device_id").Inc()
		return
	}

	if !utf8.Valid(payload) {
		h.logger.Warn("skipping message with non-UTF-8 payload", zap.String("topic", topic))
		metrics.MessagesDiscarded.WithLabelValues("invalid_payload").Inc()
		return
	}

	// Payload is opaque text; no trimming or numeric coercion.
	value := string(payload)
	if value == "" {
		h.logger.Warn("skipping message with empty payload", zap.String("topic", topic))
		metrics.MessagesDiscarded.WithLabelValues("empty_payload").Inc()
		return
	}

	timer := prometheus.NewTimer(metrics.InsertDuration)
	err := h.store.InsertReading(context.Background(), store.Reading{
		DeviceID: deviceID,
		Payload:  value,
		Topic:    topic,
	})
	elapsed := timer.ObserveDuration()

	if err != nil {
		if errors.Is(err, store.ErrSchemaMissing) {
			h.logger.Error("database schema missing",
				zap.String("table", store.TableName),
				zap.Error(err))
			metrics.InsertErrors.WithLabelValues("schema_missing").Inc()
		} else {
			h.logger.Error("database insertion error",
				zap.String("topic", topic),
				zap.Error(err))
			metrics.InsertErrors.WithLabelValues("generic").Inc()
		}
		return
	}

	metrics.RowsInserted.Inc()
	h.logger.Debug("inserted reading",
		zap.String("device_id", deviceID),
		zap.String("value", value),
		zap.String("topic", topic),
		zap.Duration("elapsed", elapsed))
}
