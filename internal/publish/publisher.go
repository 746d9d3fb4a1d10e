package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/hw-control/hgc/internal/config"
	"github.com/hw-control/hgc/internal/driver"
	"github.com/hw-control/hgc/internal/state"
)

// connectTimeout bounds the initial broker handshake. Startup does not
// block on an absent broker; paho keeps reconnecting in the background.
const connectTimeout = 5 * time.Second

// Broker is the narrow slice of the paho client the publisher needs.
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
}

// PublishMetrics counts publish outcomes.
type PublishMetrics interface {
	ObservePublish(err error)
}

// Publisher forwards state store updates to the broker.
type Publisher struct {
	broker  Broker
	cfg     config.MQTTConfig
	store   *state.Store
	metrics PublishMetrics

	units map[state.ChannelID]string

	mu         sync.Mutex
	discovered map[state.ChannelID]bool
	lastValue  map[state.ChannelID]string
}

// New creates a publisher over an already connected broker.
func New(broker Broker, cfg config.Config, store *state.Store) *Publisher {
	return &Publisher{
		broker:     broker,
		cfg:        cfg.MQTT,
		store:      store,
		units:      unitMap(cfg),
		discovered: make(map[state.ChannelID]bool),
		lastValue:  make(map[state.ChannelID]string),
	}
}

// SetMetrics attaches the publish counter.
func (p *Publisher) SetMetrics(m PublishMetrics) {
	p.metrics = m
}

// Options builds the paho client options: identity, credentials, LWT and
// automatic reconnect.
func Options(cfg config.MQTTConfig) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetWill(availabilityTopic(cfg.TopicPrefix), "offline", 1, true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	return opts
}

// Connect dials the broker and returns a running publisher. The OnConnect
// hook re-announces discovery after every reconnect, so a broker restart
// cannot silently drop retained documents.
func Connect(cfg config.Config, store *state.Store) (*Publisher, mqtt.Client, error) {
	p := New(nil, cfg, store)

	opts := Options(cfg.MQTT)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		p.handleConnect()
	})

	client := mqtt.NewClient(opts)
	p.broker = client

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Printf("publish: broker %s not reachable yet, reconnecting in background", cfg.MQTT.BrokerURL)
	} else if err := token.Error(); err != nil {
		return nil, nil, driver.Broker("publish.connect", err)
	}
	return p, client, nil
}

// Run consumes store snapshots until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	snaps, cancel := p.store.Subscribe()
	defer cancel()

	// Seed from whatever is already in the store.
	p.publishSnapshot(p.store.GetSnapshot())

	for {
		select {
		case <-ctx.Done():
			p.publishAvailability("offline")
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			p.publishSnapshot(snap)
		}
	}
}

// handleConnect resets discovery bookkeeping and marks the gateway online.
func (p *Publisher) handleConnect() {
	p.mu.Lock()
	p.discovered = make(map[state.ChannelID]bool)
	p.lastValue = make(map[state.ChannelID]string)
	p.mu.Unlock()

	p.publishAvailability("online")
	log.Printf("publish: connected to broker %s", p.cfg.BrokerURL)
}

// publishSnapshot pushes every changed, publishable channel of snap.
// Stale channels are withheld: the broker only ever sees values the
// drivers vouch for.
func (p *Publisher) publishSnapshot(snap state.Snapshot) {
	if !p.broker.IsConnected() {
		return
	}

	for id, ch := range snap.Channels {
		if ch.Health != state.Fresh {
			continue
		}

		payload, err := encodeValue(ch.Value)
		if err != nil {
			continue
		}

		p.mu.Lock()
		changed := p.lastValue[id] != payload
		needDiscovery := discoverable(id) && !p.discovered[id]
		p.mu.Unlock()

		// Bookkeeping is committed only after a send succeeds, so a failed
		// send is retried on the next snapshot, whichever channel caused it.
		if needDiscovery && p.publishDiscovery(id) == nil {
			p.mu.Lock()
			p.discovered[id] = true
			p.mu.Unlock()
		}
		if !changed {
			continue
		}
		err = p.publish(stateTopic(p.cfg.TopicPrefix, id), false, payload)
		p.record(err)
		if err == nil {
			p.mu.Lock()
			p.lastValue[id] = payload
			p.mu.Unlock()
		}
	}
}

// publishDiscovery emits the retained Home Assistant config document.
func (p *Publisher) publishDiscovery(id state.ChannelID) error {
	doc := discoveryPayload{
		Name:              friendlyName(p.cfg.DeviceName, id),
		UniqueID:          uniqueID(p.cfg.ClientID, id),
		StateTopic:        stateTopic(p.cfg.TopicPrefix, id),
		AvailabilityTopic: availabilityTopic(p.cfg.TopicPrefix),
		UnitOfMeasurement: p.units[id],
		Device: discoveryDevice{
			Identifiers: []string{p.cfg.ClientID},
			Name:        p.cfg.DeviceName,
		},
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	err = p.publish(discoveryTopic(p.cfg.DiscoveryPrefix, p.cfg.ClientID, id), true, string(payload))
	p.record(err)
	return err
}

// publishAvailability sets the retained online/offline marker.
func (p *Publisher) publishAvailability(status string) {
	p.record(p.publish(availabilityTopic(p.cfg.TopicPrefix), true, status))
}

// publish sends one message at QoS 1 without blocking the snapshot loop.
func (p *Publisher) publish(topic string, retained bool, payload string) error {
	token := p.broker.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(time.Second) {
		return driver.Broker("publish.send", fmt.Errorf("publish to %s timed out", topic))
	}
	if err := token.Error(); err != nil {
		return driver.Broker("publish.send", err)
	}
	return nil
}

// record feeds the outcome to metrics and the log.
func (p *Publisher) record(err error) {
	if p.metrics != nil {
		p.metrics.ObservePublish(err)
	}
	if err != nil {
		log.Printf("publish: %v", err)
	}
}

// encodeValue renders a channel value as an MQTT payload. Scalars go out
// bare, structured values as JSON.
func encodeValue(v any) (string, error) {
	switch val := v.(type) {
	case float64:
		return fmt.Sprintf("%.2f", val), nil
	case bool:
		if val {
			return "1", nil
		}
		return "0", nil
	case string:
		return val, nil
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
