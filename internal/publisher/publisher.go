// Package publisher sends status telemetry to an MQTT broker. Batches that
// cannot be delivered after a few retries are spooled and replayed later.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/Natclanwy/cc-sfs/internal/buffer"
	"github.com/Natclanwy/cc-sfs/internal/config"
	"github.com/Natclanwy/cc-sfs/internal/models"
)

const (
	// maxRetries is the number of retries before a batch is spooled.
	maxRetries = 3

	baseRetryDelay = 2 * time.Second

	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// ErrNotConnected is returned while the broker connection is down.
var ErrNotConnected = errors.New("mqtt not connected")

// publishFunc delivers one payload to topic.
type publishFunc func(topic string, payload []byte) error

// Publisher delivers status batches with retry and spool fallback.
type Publisher struct {
	cfg    config.MQTTConfig
	logger *zap.Logger
	buf    *buffer.Buffer

	client     mqtt.Client
	publish    publishFunc
	retryDelay time.Duration
}

// New creates a Publisher. buf may be nil, in which case undeliverable
// batches are dropped.
func New(cfg config.MQTTConfig, buf *buffer.Buffer, logger *zap.Logger) *Publisher {
	p := &Publisher{
		cfg:        cfg,
		logger:     logger.Named("publisher"),
		buf:        buf,
		retryDelay: baseRetryDelay,
	}
	p.publish = p.mqttPublish
	return p
}

// Connect opens the broker connection. The client reconnects on its own
// after later losses.
func (p *Publisher) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.cfg.Broker)
	opts.SetClientID(p.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		p.logger.Info("MQTT connection established",
			zap.String("broker", p.cfg.Broker),
			zap.String("client_id", p.cfg.ClientID))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.logger.Warn("MQTT connection lost, will auto-reconnect", zap.Error(err))
	}

	p.client = mqtt.NewClient(opts)
	p.logger.Info("Connecting to MQTT broker", zap.String("broker", p.cfg.Broker))

	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

// Disconnect closes the broker connection.
func (p *Publisher) Disconnect() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
		p.logger.Info("MQTT disconnected")
	}
}

func (p *Publisher) mqttPublish(topic string, payload []byte) error {
	if p.client == nil || !p.client.IsConnected() {
		return ErrNotConnected
	}
	token := p.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	return token.Error()
}

// Send publishes batch as one JSON array. Failed attempts are retried with
// exponential backoff; after the last one the batch is spooled. Cancelling
// ctx spools the batch immediately.
func (p *Publisher) Send(ctx context.Context, batch []models.SensorStatus) {
	if len(batch) == 0 {
		return
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		p.logger.Error("Failed to marshal batch", zap.Error(err))
		return
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := p.retryDelay << (attempt - 1)
			p.logger.Warn("Retrying publish",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				p.spool(batch)
				return
			case <-time.After(delay):
			}
		}

		err := p.publish(p.cfg.Topic, payload)
		if err == nil {
			p.logger.Debug("Batch published", zap.Int("statuses", len(batch)), zap.Int("bytes", len(payload)))
			return
		}
		if errors.Is(err, ErrNotConnected) {
			p.logger.Warn("Broker unavailable, spooling batch")
			p.spool(batch)
			return
		}
		p.logger.Warn("Publish failed", zap.Int("attempt", attempt), zap.Error(err))
	}

	p.logger.Error("All retries exhausted, spooling batch")
	p.spool(batch)
}

func (p *Publisher) spool(batch []models.SensorStatus) {
	if p.buf == nil {
		p.logger.Warn("No spool available, dropping batch", zap.Int("count", len(batch)))
		return
	}
	if err := p.buf.Store(batch); err != nil {
		p.logger.Error("Failed to spool batch", zap.Error(err))
	}
}

// FlushBuffer republishes every spooled batch.
func (p *Publisher) FlushBuffer(ctx context.Context) {
	if p.buf == nil {
		return
	}
	batches, err := p.buf.RetrieveAll()
	if err != nil {
		p.logger.Error("Failed to read spool", zap.Error(err))
		return
	}
	if len(batches) == 0 {
		return
	}

	p.logger.Info("Flushing spooled batches", zap.Int("batches", len(batches)))
	for _, batch := range batches {
		p.Send(ctx, batch)
	}
}
