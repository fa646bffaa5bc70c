package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/lockgate/internal/coordinator"
	"github.com/nerrad567/lockgate/internal/gateway"
	"github.com/nerrad567/lockgate/internal/infrastructure/mqtt"
	"github.com/nerrad567/lockgate/internal/lock"
)

const (
	// defaultCommandTimeout bounds one verb, including rate-limit waits.
	defaultCommandTimeout = 30 * time.Second

	// outboxSize is how many state updates may queue behind a slow broker.
	outboxSize = 64
)

// MQTTClient is the subset of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Controller is the coordinator surface the bridge drives.
// Satisfied by *coordinator.Coordinator.
type Controller interface {
	Execute(ctx context.Context, id string, verb coordinator.Verb) error
	RequestRefresh()
	Devices() []*lock.Device
	Health() coordinator.HealthStatus
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Bridge.
type Options struct {
	MQTT       MQTTClient
	Topics     mqtt.Topics
	Controller Controller

	// QoS for every publish and subscription.
	QoS byte

	// CommandTimeout bounds each verb. Zero selects 30s.
	CommandTimeout time.Duration

	// Logger is optional.
	Logger Logger
}

type outgoing struct {
	topic    string
	payload  []byte
	retained bool
}

// Bridge mirrors lock state and gateway health onto MQTT and turns command
// messages into coordinator verbs.
//
// State updates from the coordinator are queued and published by a single
// goroutine so a slow broker never stalls a refresh cycle. Commands run on
// their own goroutines; their results go to the lock's result topic.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt       MQTTClient
	topics     mqtt.Topics
	controller Controller
	qos        byte
	timeout    time.Duration
	logger     Logger

	outbox chan outgoing

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a bridge. Call Start to subscribe and begin publishing.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}

	b := &Bridge{
		mqtt:       opts.MQTT,
		topics:     opts.Topics,
		controller: opts.Controller,
		qos:        opts.QoS,
		timeout:    opts.CommandTimeout,
		logger:     opts.Logger,
		outbox:     make(chan outgoing, outboxSize),
	}
	if b.timeout <= 0 {
		b.timeout = defaultCommandTimeout
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	return b, nil
}

// Start subscribes to the command and refresh topics, starts the publisher
// and publishes the current state of every lock and the gateway.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.started = true
	b.mu.Unlock()

	b.wg.Add(1)
	go b.publishLoop()

	if err := b.mqtt.Subscribe(b.topics.AllLockCommands(), b.qos, b.handleCommand); err != nil {
		b.Stop()
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	if err := b.mqtt.Subscribe(b.topics.Refresh(), b.qos, b.handleRefresh); err != nil {
		b.Stop()
		return fmt.Errorf("subscribe to refresh: %w", err)
	}

	b.PublishAll()

	b.logger.Info("mqtt bridge started",
		"commands", b.topics.AllLockCommands(),
		"locks", len(b.controller.Devices()))
	return nil
}

// Stop cancels in-flight commands, drains queued state and unsubscribes.
// It is safe to call more than once.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	cancel := b.cancel
	b.mu.Unlock()

	cancel()
	b.wg.Wait()

	for _, topic := range []string{b.topics.AllLockCommands(), b.topics.Refresh()} {
		if err := b.mqtt.Unsubscribe(topic); err != nil {
			b.logger.Debug("mqtt unsubscribe failed", "topic", topic, "error", err)
		}
	}
	b.logger.Info("mqtt bridge stopped")
}

// PublishAll republishes every lock's state and the gateway health.
// Call it after a broker reconnect so retained topics are current.
func (b *Bridge) PublishAll() {
	for _, d := range b.controller.Devices() {
		b.LockStateChanged(d.Snapshot())
	}
	b.GatewayHealthChanged(b.controller.Health())
}

// LockStateChanged queues a retained state update. It never blocks.
func (b *Bridge) LockStateChanged(snap lock.Snapshot) {
	payload, err := json.Marshal(StateMessage{Snapshot: snap, Timestamp: time.Now().UTC()})
	if err != nil {
		b.logger.Error("failed to marshal lock state", "lock", snap.ID, "error", err)
		return
	}
	b.enqueue(outgoing{topic: b.topics.LockState(snap.ID), payload: payload, retained: true})
}

// GatewayHealthChanged queues a retained health update. It never blocks.
func (b *Bridge) GatewayHealthChanged(status coordinator.HealthStatus) {
	payload, err := json.Marshal(status)
	if err != nil {
		b.logger.Error("failed to marshal gateway health", "gateway", status.GatewayID, "error", err)
		return
	}
	b.enqueue(outgoing{topic: b.topics.GatewayHealth(status.GatewayID), payload: payload, retained: true})
}

// PublishSnapshot publishes a lock's state synchronously.
func (b *Bridge) PublishSnapshot(snap lock.Snapshot) error {
	payload, err := json.Marshal(StateMessage{Snapshot: snap, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal lock state: %w", err)
	}
	return b.mqtt.Publish(b.topics.LockState(snap.ID), payload, b.qos, true)
}

// PublishHealth publishes gateway health synchronously.
func (b *Bridge) PublishHealth(status coordinator.HealthStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal gateway health: %w", err)
	}
	return b.mqtt.Publish(b.topics.GatewayHealth(status.GatewayID), payload, b.qos, true)
}

func (b *Bridge) enqueue(msg outgoing) {
	select {
	case b.outbox <- msg:
	default:
		b.logger.Warn("mqtt outbox full, dropping update", "topic", msg.topic)
	}
}

func (b *Bridge) publishLoop() {
	defer b.wg.Done()
	for {
		select {
		case msg := <-b.outbox:
			b.publish(msg)
		case <-b.ctx.Done():
			// Drain what is already queued so the last state reaches the broker.
			for {
				select {
				case msg := <-b.outbox:
					b.publish(msg)
				default:
					return
				}
			}
		}
	}
}

func (b *Bridge) publish(msg outgoing) {
	if err := b.mqtt.Publish(msg.topic, msg.payload, b.qos, msg.retained); err != nil {
		b.logger.Warn("mqtt publish failed", "topic", msg.topic, "error", err)
	}
}

// handleCommand parses a command and runs it in the background.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	lockID, ok := b.topics.LockIDFromCommand(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %s", ErrInvalidCommand, topic)
	}

	cmd, err := parseCommand(payload)
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if err != nil {
		b.publishResult(failedResult(cmd, lockID, ErrCodeInvalidCommand, 0, err.Error()))
		return err
	}

	verb, err := coordinator.ParseVerb(cmd.Verb)
	if err != nil {
		b.publishResult(failedResult(cmd, lockID, ErrCodeInvalidCommand, 0, err.Error()))
		return err
	}

	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return fmt.Errorf("command %s for %s arrived after stop", cmd.ID, lockID)
	}
	ctx := b.ctx
	b.wg.Add(1)
	b.mu.Unlock()

	b.logger.Info("received lock command",
		"command_id", cmd.ID, "lock", lockID, "verb", string(verb), "source", cmd.Source)

	go func() {
		defer b.wg.Done()
		b.execute(ctx, cmd, lockID, verb)
	}()
	return nil
}

func (b *Bridge) execute(ctx context.Context, cmd CommandMessage, lockID string, verb coordinator.Verb) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	err := b.controller.Execute(ctx, lockID, verb)
	if err == nil {
		b.publishResult(ResultMessage{
			CommandID: cmd.ID,
			LockID:    lockID,
			Verb:      cmd.Verb,
			Status:    ResultOK,
			Timestamp: time.Now().UTC(),
		})
		return
	}

	code, gwCode := classify(err)
	b.publishResult(failedResult(cmd, lockID, code, gwCode, err.Error()))
}

func (b *Bridge) handleRefresh(_ string, payload []byte) error {
	var msg RefreshMessage
	if len(payload) > 0 && payload[0] == '{' {
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("parse refresh request: %w", err)
		}
	}
	b.logger.Debug("refresh requested over mqtt", "source", msg.Source)
	b.controller.RequestRefresh()
	return nil
}

func (b *Bridge) publishResult(res ResultMessage) {
	payload, err := json.Marshal(res)
	if err != nil {
		b.logger.Error("failed to marshal command result", "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.LockResult(res.LockID), payload, b.qos, false); err != nil {
		b.logger.Warn("failed to publish command result", "command_id", res.CommandID, "error", err)
	}
}

func failedResult(cmd CommandMessage, lockID, code string, gwCode int, msg string) ResultMessage {
	return ResultMessage{
		CommandID: cmd.ID,
		LockID:    lockID,
		Verb:      cmd.Verb,
		Status:    ResultFailed,
		Error:     &ResultError{Code: code, GatewayCode: gwCode, Message: msg},
		Timestamp: time.Now().UTC(),
	}
}

// classify maps a command error onto a result error code.
func classify(err error) (code string, gatewayCode int) {
	switch {
	case errors.Is(err, lock.ErrDeviceNotFound):
		return ErrCodeUnknownLock, 0
	case errors.Is(err, coordinator.ErrUnknownVerb):
		return ErrCodeInvalidCommand, 0
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeCancelled, 0
	case gateway.IsTransport(err):
		return ErrCodeUnreachable, 0
	}
	if c, ok := gateway.ErrorCode(err); ok {
		return ErrCodeGateway, c
	}
	return ErrCodeGateway, 0
}
