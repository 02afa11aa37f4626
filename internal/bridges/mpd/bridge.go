package mpd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-mpd/internal/infrastructure/mqtt"
)

// commandTimeout bounds one inbound command, including a reconnect attempt.
const commandTimeout = 15 * time.Second

// Config holds the bridge settings taken from the service configuration.
type Config struct {
	BridgeID       string
	Version        string
	HealthInterval time.Duration
	ConnectTimeout time.Duration
	VolumeStep     int
	SweepSchedule  string

	// QoS for state publishes and subscriptions. Default: 1.
	QoS byte
}

// Bridge orchestrates translation between Gray Logic items and MPD players.
// It handles:
//   - Receiving item commands via MQTT and dispatching them to players
//   - Publishing player notifications as retained item state
//   - Applying player configuration updates and the reconnect sweep
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	loggable

	cfg    Config
	mqtt   MQTTClient
	topics mqtt.Topics

	registry   *Registry
	supervisor *Supervisor
	dispatcher *Dispatcher
	translator *Translator
	bindings   *BindingSet
	health     *HealthReporter
	players    map[string]string

	// updateMu serialises configuration updates.
	updateMu sync.Mutex

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	stopMu    sync.RWMutex
	stopped   bool
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests; main adapts *mqtt.Client to it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	Config Config

	MQTTClient MQTTClient
	Dialer     Dialer
	Scheduler  Scheduler

	// Bindings maps items to players. Default: an empty set.
	Bindings *BindingSet

	// Players is the initial flat player configuration applied by Start.
	Players map[string]string

	// Sinks receive every published update in addition to MQTT. Optional.
	Sinks []Publisher

	Logger Logger
}

// NewBridge creates a new bridge instance. Call Start to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Dialer == nil {
		return nil, fmt.Errorf("dialer is required")
	}
	if opts.Scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}

	cfg := opts.Config
	if cfg.QoS == 0 {
		cfg.QoS = 1
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = DefaultSweepSchedule
	}
	bindings := opts.Bindings
	if bindings == nil {
		bindings = NewBindingSet()
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:       cfg,
		mqtt:      opts.MQTTClient,
		registry:  NewRegistry(),
		bindings:  bindings,
		players:   opts.Players,
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: ctxCancel,
	}

	publishers := Fanout{&statePublisher{client: opts.MQTTClient, qos: cfg.QoS}}
	publishers = append(publishers, opts.Sinks...)
	b.translator = NewTranslator(b.registry, bindings, publishers)

	supervisor, err := NewSupervisor(SupervisorOptions{
		Registry:       b.registry,
		Dialer:         opts.Dialer,
		Sink:           b.translator,
		Scheduler:      opts.Scheduler,
		ConnectTimeout: cfg.ConnectTimeout,
		Context:        ctx,
		OnChange:       b.playerChanged,
	})
	if err != nil {
		ctxCancel()
		return nil, err
	}
	b.supervisor = supervisor
	b.dispatcher = NewDispatcher(b.registry, supervisor, cfg.VolumeStep)

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  cfg.BridgeID,
		Version:   cfg.Version,
		Topic:     b.topics.BridgeHealth(Protocol),
		Interval:  cfg.HealthInterval,
		Publisher: opts.MQTTClient,
		Players:   b.registry,
	})

	b.SetLogger(opts.Logger)
	return b, nil
}

// SetLogger sets the logger for the bridge and its components.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggable.SetLogger(logger)
	for _, l := range []interface{ SetLogger(Logger) }{b.translator, b.supervisor, b.dispatcher, b.health} {
		if l != nil {
			l.SetLogger(logger)
		}
	}
}

// Start subscribes to command and configuration topics, applies the
// initial player configuration and starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	commandTopic := b.topics.BridgeCommands(Protocol)
	if err := b.mqtt.Subscribe(commandTopic, b.cfg.QoS, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	configTopic := b.topics.BridgeConfig(Protocol)
	if err := b.mqtt.Subscribe(configTopic, b.cfg.QoS, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to config: %w", err)
	}
	b.logInfo("subscribed to config", "topic", configTopic)

	if err := b.Updated(ctx, b.players); err != nil {
		b.logWarn("initial player configuration has errors", "error", err)
	}

	b.health.Start(ctx)

	b.logInfo("bridge started",
		"bridge_id", b.cfg.BridgeID,
		"players", b.registry.Len(),
		"connected", b.registry.ConnectedCount(),
		"items", len(b.bindings.Items()))
	return nil
}

// Stop gracefully shuts down the bridge: the bus subscriptions are
// dropped, in-flight commands are waited for, the sweep is cancelled and
// every player is disconnected.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)

		b.stopMu.Lock()
		b.stopped = true
		b.stopMu.Unlock()

		for _, topic := range []string{b.topics.BridgeCommands(Protocol), b.topics.BridgeConfig(Protocol)} {
			if err := b.mqtt.Unsubscribe(topic); err != nil {
				b.logDebug("unsubscribe failed", "topic", topic, "error", err)
			}
		}

		b.ctxCancel()
		b.wg.Wait()

		b.supervisor.CancelSweep()
		if err := b.supervisor.DisconnectAll(); err != nil {
			b.logWarn("errors disconnecting players", "error", err)
		}

		b.health.Stop()
		b.logInfo("bridge stopped")
	})
}

// Updated applies a flat player configuration: every player is
// disconnected, the sweep cancelled, the configuration replaced, every
// player connected and the sweep rescheduled.
//
// Malformed keys are returned as *ConfigError values; valid keys are still
// applied. Connection failures are logged, not returned.
func (b *Bridge) Updated(ctx context.Context, flat map[string]string) error {
	b.updateMu.Lock()
	defer b.updateMu.Unlock()

	players, cfgErr := ParsePlayerConfig(flat)
	if cfgErr != nil {
		b.logWarn("invalid player configuration keys", "error", cfgErr)
	}

	err := b.supervisor.Reconfigure(ctx, func() {
		b.supervisor.CancelSweep()
		if err := b.registry.Replace(players); err != nil {
			b.logWarn("could not remove players", "error", err)
		}
	})
	if err != nil {
		b.logWarn("some players failed to reconnect", "error", err)
	}

	if err := b.supervisor.ScheduleSweep(b.cfg.SweepSchedule); err != nil {
		return errors.Join(cfgErr, err)
	}

	b.logInfo("player configuration applied",
		"players", len(players),
		"connected", b.registry.ConnectedCount())
	return cfgErr
}

// ReloadBindings swaps in a new binding set.
func (b *Bridge) ReloadBindings(set *BindingSet) {
	b.bindings.Replace(set)
	b.logInfo("bindings reloaded", "items", len(b.bindings.Items()))
}

// HandleCommand resolves an item command through the bindings and
// dispatches it to the bound player.
func (b *Bridge) HandleCommand(ctx context.Context, msg CommandMessage) error {
	raw, param, err := msg.RawCommand()
	if err != nil {
		return err
	}

	target, ok := b.bindings.ResolveCommand(msg.Item, raw)
	if !ok {
		return fmt.Errorf("%w: item %s command %s", ErrNoBinding, msg.Item, raw)
	}
	if target.Param != "" {
		param = target.Param
	}

	b.logInfo("received command",
		"command_id", msg.ID,
		"item", msg.Item,
		"player_id", target.PlayerID,
		"action", target.Action)

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return b.dispatcher.Dispatch(ctx, target.PlayerID, target.Action, param)
}

// Reconnect reconnects one player on demand.
func (b *Bridge) Reconnect(ctx context.Context, playerID string) error {
	return b.supervisor.Reconnect(ctx, playerID)
}

// Players returns the status of every configured player.
func (b *Bridge) Players() []PlayerStatus {
	return b.registry.Snapshot()
}

// Player returns the status of one player.
func (b *Bridge) Player(playerID string) (PlayerStatus, bool) {
	return b.registry.Status(playerID)
}

// handleMQTTMessage routes incoming MQTT messages to appropriate handlers.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	if item, ok := b.topics.ItemFromTopic(topic, "command", Protocol); ok {
		b.goCommand(item, payload)
		return
	}
	if topic == b.topics.BridgeConfig(Protocol) {
		b.handleConfig(payload)
		return
	}
	b.logWarn("ignoring message on unexpected topic", "topic", topic)
}

// goCommand runs a command in its own goroutine so a reconnect attempt
// only delays that command.
func (b *Bridge) goCommand(item string, payload []byte) {
	msg, err := ParseCommandMessage(item, payload)
	if err != nil {
		b.logError("failed to parse command", err, "item", item)
		return
	}

	b.stopMu.RLock()
	defer b.stopMu.RUnlock()
	if b.stopped {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.HandleCommand(b.ctx, msg); err != nil {
			b.logError("command failed", err, "command_id", msg.ID, "item", msg.Item)
		}
	}()
}

func (b *Bridge) handleConfig(payload []byte) {
	flat, err := ParseConfigMessage(payload)
	if err != nil {
		b.logError("failed to parse player configuration", err)
		return
	}
	if err := b.Updated(b.ctx, flat); err != nil {
		b.logWarn("player configuration applied with errors", "error", err)
	}
}

// playerChanged republishes health when a player connects or disconnects.
func (b *Bridge) playerChanged(playerID string, connected bool) {
	b.logDebug("player connectivity changed", "player_id", playerID, "connected", connected)
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish health", err)
	}
}
