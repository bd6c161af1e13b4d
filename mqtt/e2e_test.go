package mqtt

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilievs/plugpanel/config"
	"github.com/ilievs/plugpanel/core"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type cardPanel struct {
	cards chan core.Card
}

func (p *cardPanel) RenderCard(card core.Card)       { p.cards <- card }
func (p *cardPanel) SetRelay(on bool, status string) {}
func (p *cardPanel) SetTimerText(text string)        {}

// connectNotifier signals every (re)connection after the controller has
// subscribed.
type connectNotifier struct {
	*core.PlugController
	connected chan struct{}
}

func (n *connectNotifier) OnConnected(ctx context.Context) {
	n.PlugController.OnConnected(ctx)
	n.connected <- struct{}{}
}

func freeAddress(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func TestClientAgainstEmbeddedBroker(t *testing.T) {
	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))

	addr := freeAddress(t)
	broker := NewBroker(config.BrokerConfig{TCPAddress: addr}, logger)
	presence := &countingPresence{}
	require.NoError(t, broker.Start(
		[]mochi.Hook{new(PresenceHook)},
		[]any{&HookOptions{Counter: presence, Logger: logger}},
	))
	t.Cleanup(func() { broker.Close() })

	cfg := config.Default().MQTT
	cfg.BrokerURL = "mqtt://" + addr
	cfg.ClientIDPrefix = "e2e"
	cfg.ConnectTimeout = 2 * time.Second
	cfg.ReconnectDelay = 100 * time.Millisecond
	client := NewClient(cfg, logger)

	panel := &cardPanel{cards: make(chan core.Card, 8)}
	ctrl := core.NewPlugController(7, client, panel, core.WithLogger(logger))
	h := &connectNotifier{PlugController: ctrl, connected: make(chan struct{}, 8)}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, client.Start(ctx, h))
	waitFor(t, h.connected, "first connection")
	assert.Eventually(t, func() bool { return presence.current() == 1 }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, broker.Publish("smart/plug/7/codedata",
		[]byte(`{"voltage":220,"current":0.5,"relay":1,"timer":0}`)))
	card := waitFor(t, panel.cards, "first reading")
	assert.Equal(t, "Power: 110.00 W", card.Power)

	// readings for another plug are not subscribed to
	require.NoError(t, broker.Publish("smart/plug/8/codedata", []byte(`{"voltage":1}`)))

	for _, cl := range broker.server.Clients.GetAll() {
		if strings.HasPrefix(cl.ID, "e2e-") {
			cl.Stop(errors.New("connection dropped"))
		}
	}
	waitFor(t, h.connected, "reconnection")

	require.NoError(t, broker.Publish("smart/plug/7/codedata",
		[]byte(`{"voltage":230,"current":0.5,"relay":0,"timer":0}`)))
	card = waitFor(t, panel.cards, "reading after reconnect")
	assert.Equal(t, "Voltage: 230.0 V", card.Voltage)

	require.NoError(t, ctrl.Toggle(ctx, true))
	assert.Eventually(t, func() bool {
		return strings.Contains(logs.String(), `msg="plug command"`) &&
			strings.Contains(logs.String(), "plug=7 cmd=on")
	}, 5*time.Second, 20*time.Millisecond)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	require.NoError(t, client.Close(closeCtx))
	assert.Eventually(t, func() bool { return presence.current() == 0 }, 5*time.Second, 20*time.Millisecond)
}

type countingPresence struct {
	mu sync.Mutex
	n  int
}

func (c *countingPresence) ClientConnected() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingPresence) ClientDisconnected() {
	c.mu.Lock()
	c.n--
	c.mu.Unlock()
}

func (c *countingPresence) current() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
