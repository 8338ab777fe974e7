package conflate

import (
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DatasetHandler is called when a dataset arrives on a subscribed topic.
// On a decode failure fc is nil and err is set.
type DatasetHandler func(role string, fc *FeatureCollection, convErrs []ConversionError, err error)

// MQTTClient subscribes to the reference and subject dataset topics.
type MQTTClient struct {
	client      mqtt.Client
	settings    MQTTConfig
	datasets    map[string]DatasetConfig
	handler     DatasetHandler
	isConnected bool
	mu          sync.RWMutex
}

// NewMQTTClient builds a client from config. It returns nil, nil when no
// broker is configured, which disables MQTT.
func NewMQTTClient(config *Config, handler DatasetHandler) (*MQTTClient, error) {
	settings := config.MQTTSettings()
	if settings.Broker == "" {
		log.Println("[MQTT] Disabled: no broker configured")
		return nil, nil
	}

	datasets := topicDatasets(config)
	if len(datasets) == 0 {
		return nil, fmt.Errorf("MQTT enabled but no dataset topics configured")
	}

	c := &MQTTClient{
		settings: settings,
		datasets: datasets,
		handler:  handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(settings.Broker)
	opts.SetClientID(settings.ClientID)
	if settings.Username != "" {
		opts.SetUsername(settings.Username)
		opts.SetPassword(settings.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		log.Println("[MQTT] Reconnecting...")
	})

	c.client = mqtt.NewClient(opts)
	return c, nil
}

func newMQTTClientWith(client mqtt.Client, config *Config, handler DatasetHandler) *MQTTClient {
	return &MQTTClient{
		client:   client,
		settings: config.MQTTSettings(),
		datasets: topicDatasets(config),
		handler:  handler,
	}
}

func topicDatasets(config *Config) map[string]DatasetConfig {
	datasets := make(map[string]DatasetConfig, 2)
	if config.Reference.Topic != "" {
		datasets[RoleReference] = config.Reference
	}
	if config.Subject.Topic != "" {
		datasets[RoleSubject] = config.Subject
	}
	return datasets
}

// Start connects in the background, retrying with exponential backoff until
// stop is closed or the connection succeeds.
func (c *MQTTClient) Start(stop <-chan struct{}) {
	go c.connectWithRetry(stop)
}

func (c *MQTTClient) connectWithRetry(stop <-chan struct{}) {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Printf("[MQTT] Connecting to %s...", c.settings.Broker)
		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] Connected")
				c.setConnected(true)
				return
			}
			log.Printf("[MQTT] Connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] Connection timeout")
		}

		log.Printf("[MQTT] Retrying in %v", retryDelay)
		select {
		case <-stop:
			return
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)
	c.subscribe(client)
}

// subscribe registers a handler for every configured dataset topic.
func (c *MQTTClient) subscribe(client mqtt.Client) {
	for _, role := range []string{RoleReference, RoleSubject} {
		dc, ok := c.datasets[role]
		if !ok {
			continue
		}
		token := client.Subscribe(dc.Topic, 0, c.datasetHandler(role, dc))
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("[MQTT] Error subscribing to %s: %v", dc.Topic, token.Error())
			continue
		}
		log.Printf("[MQTT] Subscribed to %s (%s)", dc.Topic, role)
	}
}

func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("[MQTT] Connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

// datasetHandler decodes a GeoJSON payload for role and forwards it.
func (c *MQTTClient) datasetHandler(role string, dc DatasetConfig) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()
		log.Printf("[MQTT] Received %s dataset (topic: %s, size: %d bytes)", role, msg.Topic(), len(payload))

		fc, convErrs, err := LoadGeoJSON(payload, LoadOptions{IDProperty: dc.IDProperty, Prefix: role})
		if err != nil {
			log.Printf("[MQTT] Error decoding %s dataset: %v", role, err)
			if c.handler != nil {
				c.handler(role, nil, nil, err)
			}
			return
		}
		Calibrate(fc, dc)
		if c.handler != nil {
			c.handler(role, fc, convErrs, nil)
		}
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] Disconnecting...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// Client returns the underlying MQTT client for publishing.
func (c *MQTTClient) Client() mqtt.Client {
	return c.client
}

// PublishPrefix returns the topic prefix for published results.
func (c *MQTTClient) PublishPrefix() string {
	return c.settings.PublishPrefix
}
