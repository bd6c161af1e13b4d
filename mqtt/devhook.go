package mqtt

import (
	"bytes"
	"log/slog"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
)

// ClientCounter tracks how many clients hold a session on the broker.
type ClientCounter interface {
	ClientConnected()
	ClientDisconnected()
}

type HookOptions struct {
	Counter ClientCounter
	Logger  *slog.Logger
}

type PresenceHook struct {
	mochi.HookBase
	counter ClientCounter
	logger  *slog.Logger
}

// ID returns the ID of the hook.
func (h *PresenceHook) ID() string {
	return "PresenceHook"
}

func (h *PresenceHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mochi.OnSessionEstablished,
		mochi.OnDisconnect,
	}, []byte{b})
}

func (h *PresenceHook) Init(config any) error {
	if _, ok := config.(*HookOptions); !ok && config != nil {
		return mochi.ErrInvalidConfigType
	}

	if config == nil {
		config = new(HookOptions)
	}

	opt := config.(*HookOptions)
	h.counter = opt.Counter
	h.logger = opt.Logger
	if h.logger == nil {
		h.logger = slog.Default()
	}

	return nil
}

// OnSessionEstablished is called when a new client establishes a session (after OnConnect).
func (h *PresenceHook) OnSessionEstablished(cl *mochi.Client, pk packets.Packet) {
	if h.counter != nil {
		h.counter.ClientConnected()
	}
	h.logger.Info("client connected", "client", cl.ID)
}

// OnDisconnect is called when a client is disconnected for any reason.
func (h *PresenceHook) OnDisconnect(cl *mochi.Client, err error, expire bool) {
	if h.counter != nil {
		h.counter.ClientDisconnected()
	}
	h.logger.Info("client disconnected", "client", cl.ID, "error", err)
}
