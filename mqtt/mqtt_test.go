package mqtt

import (
	"context"
	"errors"
	"testing"

	"github.com/eclipse/paho.golang/paho"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilievs/plugpanel/config"
)

type recordingHandler struct {
	connected int
	topics    []string
	payloads  []string
}

func (h *recordingHandler) OnConnected(ctx context.Context) {
	h.connected++
}

func (h *recordingHandler) HandleTelemetry(topic string, payload []byte) {
	h.topics = append(h.topics, topic)
	h.payloads = append(h.payloads, string(payload))
}

func TestClientRoutesPublishesToHandler(t *testing.T) {
	c := NewClient(config.Default().MQTT, nil)
	h := &recordingHandler{}
	c.handler = h

	handled, err := c.onPublishReceived(paho.PublishReceived{
		Packet: &paho.Publish{Topic: "smart/plug/1/codedata", Payload: []byte(`{"voltage":1}`)},
	})

	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"smart/plug/1/codedata"}, h.topics)
	assert.Equal(t, []string{`{"voltage":1}`}, h.payloads)
}

func TestClientNotConnected(t *testing.T) {
	c := NewClient(config.Default().MQTT, nil)

	assert.True(t, errors.Is(c.Publish(context.Background(), "t", nil), ErrNotConnected))
	assert.True(t, errors.Is(c.Subscribe(context.Background(), "t"), ErrNotConnected))
	assert.NoError(t, c.Close(context.Background()))
}

func TestAuthLedgerWithUsers(t *testing.T) {
	ledger := AuthLedger([]config.BrokerUser{{Username: "plug1", Password: "secret"}})

	plug := &mochi.Client{ID: "plug1"}
	plug.Net.Remote = "10.0.0.7:50000"
	plug.Properties.Username = []byte("plug1")

	_, ok := ledger.AuthOk(plug, packets.Packet{Connect: packets.ConnectParams{Password: []byte("secret")}})
	assert.True(t, ok)
	_, ok = ledger.AuthOk(plug, packets.Packet{Connect: packets.ConnectParams{Password: []byte("wrong")}})
	assert.False(t, ok)

	_, ok = ledger.ACLOk(plug, "smart/plug/command", true)
	assert.True(t, ok)

	stranger := &mochi.Client{ID: "someone"}
	stranger.Net.Remote = "10.0.0.8:50000"
	_, ok = ledger.ACLOk(stranger, "smart/plug/command", true)
	assert.False(t, ok)
	_, ok = ledger.ACLOk(stranger, "smart/plug/1/codedata", false)
	assert.True(t, ok)
}

type counter struct {
	n int
}

func (c *counter) ClientConnected()    { c.n++ }
func (c *counter) ClientDisconnected() { c.n-- }

func TestPresenceHook(t *testing.T) {
	h := new(PresenceHook)
	assert.ErrorIs(t, h.Init("nope"), mochi.ErrInvalidConfigType)

	cnt := &counter{}
	require.NoError(t, h.Init(&HookOptions{Counter: cnt}))
	assert.True(t, h.Provides(mochi.OnSessionEstablished))
	assert.True(t, h.Provides(mochi.OnDisconnect))
	assert.False(t, h.Provides(mochi.OnPublish))

	cl := &mochi.Client{ID: "plug1"}
	h.OnSessionEstablished(cl, packets.Packet{})
	h.OnSessionEstablished(cl, packets.Packet{})
	h.OnDisconnect(cl, nil, false)

	assert.Equal(t, 1, cnt.n)
}

func TestAuthLedgerLoopbackIsSuperuser(t *testing.T) {
	ledger := AuthLedger([]config.BrokerUser{{Username: "plug1", Password: "secret"}})

	for _, remote := range []string{"127.0.0.1:40000", "[::1]:40000"} {
		panel := &mochi.Client{ID: "panel"}
		panel.Net.Remote = remote

		_, ok := ledger.AuthOk(panel, packets.Packet{})
		assert.True(t, ok, remote)
		_, ok = ledger.ACLOk(panel, "smart/plug/command", true)
		assert.True(t, ok, remote)
	}

	remote := &mochi.Client{ID: "panel"}
	remote.Net.Remote = "192.168.1.20:40000"
	_, ok := ledger.AuthOk(remote, packets.Packet{})
	assert.False(t, ok)
}
