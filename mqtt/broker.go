package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/ilievs/plugpanel/config"
	"github.com/ilievs/plugpanel/core"
)

// Broker is an embedded broker for running the panel, the plug simulator
// and real plugs on a local network without a public broker.
type Broker struct {
	server              *mochi.Server
	cfg                 config.BrokerConfig
	logger              *slog.Logger
	subscriberIdCounter int
	subscriberMutex     sync.Mutex
}

func NewBroker(cfg config.BrokerConfig, logger *slog.Logger) *Broker {
	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger:       logger,
	})

	return &Broker{
		server:              server,
		cfg:                 cfg,
		logger:              logger,
		subscriberIdCounter: 1,
	}
}

// AuthLedger lets configured plug users read and write the plug topics,
// treats local connections as superusers and makes everything read only
// for the rest.
func AuthLedger(users []config.BrokerUser) *auth.Ledger {
	ledger := &auth.Ledger{
		Auth: auth.AuthRules{ // Auth disallows all by default
			{Remote: "127.0.0.1:*", Allow: true},
			{Remote: "[::1]:*", Allow: true},
		},
		ACL: auth.ACLRules{ // ACL allows all by default
			{Remote: "127.0.0.1:*"}, // local superuser allow all
			{Remote: "[::1]:*"},
			{Client: mochi.InlineClientId}, // the broker's own Publish
		},
	}

	for _, u := range users {
		ledger.Auth = append(ledger.Auth, auth.AuthRule{
			Username: auth.RString(u.Username),
			Password: auth.RString(u.Password),
			Allow:    true,
		})
		ledger.ACL = append(ledger.ACL, auth.ACLRule{
			Username: auth.RString(u.Username),
			Filters: auth.Filters{
				"smart/plug/#": auth.ReadWrite,
			},
		})
	}

	if len(users) == 0 {
		// without configured users anyone may connect, e.g. a panel page on
		// another host
		ledger.Auth = append(ledger.Auth, auth.AuthRule{Allow: true})
	}

	// Otherwise, no clients have publishing permissions
	ledger.ACL = append(ledger.ACL, auth.ACLRule{
		Filters: auth.Filters{
			"#": auth.ReadOnly,
		},
	})

	return ledger
}

func (b *Broker) Start(hooks []mochi.Hook, hookConfigs []any) error {
	if len(hooks) != len(hookConfigs) {
		return errors.New("every hook needs a config entry")
	}

	err := b.server.AddHook(new(auth.Hook), &auth.Options{Ledger: AuthLedger(b.cfg.Users)})
	if err != nil {
		return fmt.Errorf("add auth hook: %w", err)
	}

	for i, hook := range hooks {
		if err := b.server.AddHook(hook, hookConfigs[i]); err != nil {
			return fmt.Errorf("add hook %s: %w", hook.ID(), err)
		}
	}

	if b.cfg.TCPAddress != "" {
		tcp := listeners.NewTCP(listeners.Config{ID: "t1", Address: b.cfg.TCPAddress})
		if err := b.server.AddListener(tcp); err != nil {
			return fmt.Errorf("add tcp listener: %w", err)
		}
	}

	if b.cfg.WebsocketAddress != "" {
		ws := listeners.NewWebsocket(listeners.Config{ID: "ws1", Address: b.cfg.WebsocketAddress})
		if err := b.server.AddListener(ws); err != nil {
			return fmt.Errorf("add websocket listener: %w", err)
		}
	}

	go func() {
		if err := b.server.Serve(); err != nil {
			b.logger.Error("embedded broker stopped", "error", err)
		}
	}()

	return b.Subscribe(core.CommandTopic, b.logCommand)
}

func (b *Broker) Close() error {
	return b.server.Close()
}

func (b *Broker) Subscribe(topicFilter string,
	callbackFn func(cl *mochi.Client, sub packets.Subscription, pk packets.Packet)) error {

	b.subscriberMutex.Lock()
	defer b.subscriberMutex.Unlock()
	err := b.server.Subscribe(topicFilter, b.subscriberIdCounter, callbackFn)
	if err != nil {
		return err
	}

	b.subscriberIdCounter += 1

	return nil
}

// Publish sends a message from the broker's inline client.
func (b *Broker) Publish(topic string, payload []byte) error {
	return b.server.Publish(topic, payload, false, 0)
}

func (b *Broker) logCommand(cl *mochi.Client, sub packets.Subscription, pk packets.Packet) {
	cmd, err := core.DecodeCommand(pk.Payload)
	if err != nil {
		b.logger.Warn("invalid plug command", "client", cl.ID, "payload", string(pk.Payload), "error", err)
		return
	}
	b.logger.Info("plug command", "client", cl.ID, "plug", int(cmd.Plug), "cmd", cmd.Kind, "seconds", cmd.Seconds)
}
