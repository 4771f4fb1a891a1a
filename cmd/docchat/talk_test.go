package main

import (
	"context"
	"errors"
	"testing"
	"time"

	orchestration "github.com/koscakluka/ema-docchat/core"
	"github.com/koscakluka/ema-docchat/core/notifications"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type channelStatusStub struct {
	connected bool
	err       error
}

func (c channelStatusStub) Connected() bool { return c.connected }
func (c channelStatusStub) Err() error      { return c.err }

func TestSeedChannelStatusLatchesEarlyConnectError(t *testing.T) {
	channel := notifications.Dial(context.Background(), "ws://127.0.0.1:1/ws",
		notifications.WithReconnectAttempts(0),
		notifications.WithConnectTimeout(time.Second),
	)
	t.Cleanup(func() { _ = channel.Close() })

	require.Eventually(t, func() bool { return channel.Err() != nil }, 3*time.Second, 10*time.Millisecond)

	o := orchestration.NewOrchestrator()
	defer o.Close()
	require.NoError(t, o.Errors().Channel)

	seedChannelStatus(o, channel)

	var channelErr *notifications.ChannelError
	assert.ErrorAs(t, o.Errors().Channel, &channelErr)
}

func TestSeedChannelStatusClearsWhenConnected(t *testing.T) {
	o := orchestration.NewOrchestrator()
	defer o.Close()

	o.SetChannelStatus(false, errors.New("connection refused"))
	require.Error(t, o.Errors().Channel)

	seedChannelStatus(o, channelStatusStub{connected: true})
	assert.NoError(t, o.Errors().Channel)
}

func TestSeedChannelStatusIgnoresPendingConnection(t *testing.T) {
	o := orchestration.NewOrchestrator()
	defer o.Close()

	seedChannelStatus(o, channelStatusStub{})
	assert.NoError(t, o.Errors().Channel)
}
