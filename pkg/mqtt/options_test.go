package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPahoOptions(t *testing.T) {
	t.Run("broker url from host and port", func(t *testing.T) {
		opts := buildPahoOptions(Options{Host: "SITH-MQTT-Broker", Port: 1883})
		require.Len(t, opts.Servers, 1)
		assert.Equal(t, "tcp://SITH-MQTT-Broker:1883", opts.Servers[0].String())
	})

	t.Run("client id generated when unset", func(t *testing.T) {
		opts := buildPahoOptions(Options{Host: "localhost", Port: 1883})
		assert.Regexp(t, `^roverlog-[0-9a-f]{8}$`, opts.ClientID)

		other := buildPahoOptions(Options{Host: "localhost", Port: 1883})
		assert.NotEqual(t, opts.ClientID, other.ClientID)
	})

	t.Run("explicit client id preserved", func(t *testing.T) {
		opts := buildPahoOptions(Options{Host: "localhost", Port: 1883, ClientID: "relay-1"})
		assert.Equal(t, "relay-1", opts.ClientID)
	})

	t.Run("keepalive defaults to 60s", func(t *testing.T) {
		opts := buildPahoOptions(Options{Host: "localhost", Port: 1883})
		assert.Equal(t, int64(60), opts.KeepAlive)

		opts = buildPahoOptions(Options{Host: "localhost", Port: 1883, KeepAlive: 30 * time.Second})
		assert.Equal(t, int64(30), opts.KeepAlive)
	})

	t.Run("ordered serialized dispatch", func(t *testing.T) {
		opts := buildPahoOptions(Options{Host: "localhost", Port: 1883})
		assert.True(t, opts.Order)
		assert.True(t, opts.AutoReconnect)
		assert.True(t, opts.CleanSession)
	})
}
