// Package mqtt owns the broker session: connection lifecycle, topic
// subscription on (re)connect, and message dispatch to the handler.
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MessageHandler is invoked once per delivered message. Handlers are
// dispatched one at a time, in delivery order, and must not panic past
// this boundary (the bridge handler recovers internally).
type MessageHandler func(topic string, payload []byte)

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// Client wraps paho.mqtt.golang with the session behavior the relay
// needs: subscriptions registered up front are issued on every connect,
// so a broker restart does not silence the relay.
type Client struct {
	opts   *pahomqtt.ClientOptions
	client pahomqtt.Client
	logger *zap.Logger

	subMu sync.RWMutex
	subs  []subscription
}

// NewClient builds a client from the given options. Subscriptions are
// registered with Handle before calling Connect.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{logger: logger}

	pahoOpts := buildPahoOptions(opts)
	pahoOpts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.onConnect()
	})
	pahoOpts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.logger.Warn("broker connection lost", zap.Error(err))
	})
	pahoOpts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.logger.Info("reconnecting to broker")
	})

	c.opts = pahoOpts
	c.client = pahomqtt.NewClient(pahoOpts)
	return c
}

// Handle registers a handler for the given topic filter. The
// subscription is issued when the session connects and re-issued on
// every reconnect.
func (c *Client) Handle(topic string, qos byte, handler MessageHandler) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subs = append(c.subs, subscription{topic: topic, qos: qos, handler: handler})
}

// Connect establishes the session, retrying with exponential backoff
// until it succeeds or the context is canceled. On success the OnConnect
// handler performs the registered subscriptions.
func (c *Client) Connect(ctx context.Context, maxElapsed time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed

	attempt := func() error {
		token := c.client.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.Warn("broker connection attempt failed", zap.Error(err))
			return err
		}
		return nil
	}

	if err := backoff.Retry(attempt, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("broker connection error: %w", err)
	}

	c.logger.Info("connected to broker")
	return nil
}

// onConnect runs on every successful (re)connection and issues all
// registered subscriptions. Paho only invokes this on a zero result
// code; non-zero connect codes surface through the connect token and
// the connection-lost handler.
func (c *Client) onConnect() {
	c.subMu.RLock()
	subs := make([]subscription, len(c.subs))
	copy(subs, c.subs)
	c.subMu.RUnlock()

	for _, sub := range subs {
		handler := sub.handler
		token := c.client.Subscribe(sub.topic, sub.qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
			handler(msg.Topic(), msg.Payload())
		})
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.Error("subscribe failed",
				zap.String("topic", sub.topic),
				zap.Error(err))
			continue
		}
		c.logger.Info("subscribed to topic", zap.String("topic", sub.topic))
	}
}

// Disconnect closes the session, allowing in-flight work to finish.
func (c *Client) Disconnect(quiesce uint) {
	c.client.Disconnect(quiesce)
	c.logger.Info("disconnected from broker")
}
