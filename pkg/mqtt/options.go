package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Options is the subset of session configuration the relay exposes.
type Options struct {
	Host      string
	Port      int
	ClientID  string
	KeepAlive time.Duration
}

const (
	defaultKeepAlive            = 60 * time.Second
	defaultConnectRetryInterval = 5 * time.Second
	defaultMaxReconnectInterval = 1 * time.Minute
)

// buildPahoOptions converts Options into paho client options. Callbacks
// are dispatched in order (OrderMatters) so at most one message is being
// handled at a time, which the synchronous insert path relies on.
func buildPahoOptions(opts Options) *pahomqtt.ClientOptions {
	pahoOpts := pahomqtt.NewClientOptions()
	pahoOpts.AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Host, opts.Port))

	clientID := opts.ClientID
	if clientID == "" {
		clientID = "roverlog-" + uuid.NewString()[:8]
	}
	pahoOpts.SetClientID(clientID)

	keepAlive := opts.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	pahoOpts.SetKeepAlive(keepAlive)

	pahoOpts.SetCleanSession(true)
	pahoOpts.SetOrderMatters(true)
	pahoOpts.SetAutoReconnect(true)
	pahoOpts.SetConnectRetryInterval(defaultConnectRetryInterval)
	pahoOpts.SetMaxReconnectInterval(defaultMaxReconnectInterval)

	return pahoOpts
}
