package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sith-robotics/roverlog/pkg/store"
)

// fakeStore records inserts and optionally fails them.
type fakeStore struct {
	readings []store.Reading
	err      error
}

func (f *fakeStore) InsertReading(_ context.Context, r store.Reading) error {
	if f.err != nil {
		return f.err
	}
	f.readings = append(f.readings, r)
	return nil
}

func newHandler(t *testing.T) (*Handler, *fakeStore) {
	t.Helper()
	fs := &fakeStore{}
	return New(fs, zap.NewNop()), fs
}

func TestHandleMessage(t *testing.T) {
	t.Run("non-matching topic is discarded without insert", func(t *testing.T) {
		h, fs := newHandler(t)
		h.HandleMessage("otherTopic/x", []byte("hello"))
		assert.Empty(t, fs.readings)
	})

	t.Run("device id is the exact topic suffix", func(t *testing.T) {
		h, fs := newHandler(t)
		h.HandleMessage("roverCommsLog/rover_A", []byte("24.5"))
		require.Len(t, fs.readings, 1)
		assert.Equal(t, "rover_A", fs.readings[0].DeviceID)
		assert.Equal(t, "24.5", fs.readings[0].Payload)
		assert.Equal(t, "roverCommsLog/rover_A", fs.readings[0].Topic)
	})

	t.Run("nested suffix is kept whole", func(t *testing.T) {
		h, fs := newHandler(t)
		h.HandleMessage("roverCommsLog/rover_B/telemetry", []byte("COMMAND_SENT"))
		require.Len(t, fs.readings, 1)
		assert.Equal(t, "rover_B/telemetry", fs.readings[0].DeviceID)
	})

	t.Run("bare prefix means empty device id, discarded", func(t *testing.T) {
		h, fs := newHandler(t)
		h.HandleMessage("roverCommsLog/", []byte("24.5"))
		assert.Empty(t, fs.readings)
	})

	t.Run("empty payload is discarded", func(t *testing.T) {
		h, fs := newHandler(t)
		h.HandleMessage("roverCommsLog/rover_B", nil)
		h.HandleMessage("roverCommsLog/rover_B", []byte{})
		assert.Empty(t, fs.readings)
	})

	t.Run("non-UTF-8 payload is discarded", func(t *testing.T) {
		h, fs := newHandler(t)
		h.HandleMessage("roverCommsLog/rover_C", []byte{0xff, 0xfe})
		assert.Empty(t, fs.readings)
	})

	t.Run("payload is stored verbatim, no trimming or coercion", func(t *testing.T) {
		h, fs := newHandler(t)
		h.HandleMessage("roverCommsLog/rover_A", []byte("  24.5 \n"))
		require.Len(t, fs.readings, 1)
		assert.Equal(t, "  24.5 \n", fs.readings[0].Payload)
	})

	t.Run("insert failure does not stop the next message", func(t *testing.T) {
		fs := &fakeStore{err: errors.New("connection reset")}
		h := New(fs, zap.NewNop())

		assert.NotPanics(t, func() {
			h.HandleMessage("roverCommsLog/rover_A", []byte("1"))
		})

		fs.err = nil
		h.HandleMessage("roverCommsLog/rover_A", []byte("2"))
		require.Len(t, fs.readings, 1)
		assert.Equal(t, "2", fs.readings[0].Payload)
	})

	t.Run("schema errors are swallowed too", func(t *testing.T) {
		fs := &fakeStore{err: store.ErrSchemaMissing}
		h := New(fs, zap.NewNop())
		assert.NotPanics(t, func() {
			h.HandleMessage("roverCommsLog/rover_A", []byte("1"))
		})
	})
}
