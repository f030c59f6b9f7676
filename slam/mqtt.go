package slam

import (
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// StopHandler is called when a stop request arrives on the stop topic
type StopHandler func(reason string)

// MQTTClient manages the broker connection used for pose publishing and the
// remote stop topic
type MQTTClient struct {
	client      mqtt.Client
	config      MQTTConfig
	stopHandler StopHandler
	logger      *zap.SugaredLogger
	isConnected bool
	done        chan struct{}
	closeOnce   sync.Once
	mu          sync.RWMutex
}

// InitMQTT creates a client and starts connecting in the background. When no
// broker is configured MQTT is disabled and it returns nil.
func InitMQTT(config MQTTConfig, logger *zap.SugaredLogger, onStop StopHandler) *MQTTClient {
	if config.Broker == "" {
		logger.Info("MQTT disabled: no broker configured")
		return nil
	}

	c := &MQTTClient{
		config:      config,
		stopHandler: onStop,
		logger:      logger,
		done:        make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)

	clientID := config.ClientID
	if clientID == "" {
		clientID = "roverslam"
	}
	opts.SetClientID(clientID)

	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.client = mqtt.NewClient(opts)
	go c.connectWithRetry()
	return c
}

// connectWithRetry attempts to connect to the broker with exponential
// backoff until it succeeds or the client is disconnected
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		c.logger.Infow("Connecting to MQTT broker", "broker", c.config.Broker)

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				c.logger.Info("Connected to MQTT broker")
				c.setConnected(true)
				return
			}
			c.logger.Warnw("MQTT connection failed", "error", token.Error())
		} else {
			c.logger.Warn("MQTT connection timeout")
		}

		c.logger.Infow("Retrying MQTT connection", "delay", retryDelay)
		select {
		case <-c.done:
			return
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect subscribes to the stop topic, if one is configured
func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)

	topic := c.config.StopTopic
	if topic == "" {
		return
	}
	token := client.Subscribe(topic, 1, c.handleStop)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		c.logger.Errorw("Error subscribing to stop topic", "topic", topic, "error", token.Error())
		return
	}
	c.logger.Infow("Subscribed to stop topic", "topic", topic)
}

// onConnectionLost is transient; auto-reconnect will retry
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	c.logger.Warnw("MQTT connection interrupted, auto-reconnect will retry", "error", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	c.logger.Info("MQTT reconnecting")
}

// handleStop treats any message on the stop topic as a stop request. Retained
// messages are ignored so a stale request cannot end a new run.
func (c *MQTTClient) handleStop(client mqtt.Client, msg mqtt.Message) {
	if msg.Retained() {
		c.logger.Infow("Ignoring retained stop request", "topic", msg.Topic())
		return
	}
	reason := strings.TrimSpace(string(msg.Payload()))
	if reason == "" {
		reason = "stop requested"
	}
	c.logger.Infow("Received stop request", "topic", msg.Topic(), "reason", reason)
	if c.stopHandler != nil {
		c.stopHandler(reason)
	}
}

// IsConnected returns true if the client is connected
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

// Disconnect stops connection attempts and closes the connection
func (c *MQTTClient) Disconnect() {
	c.closeOnce.Do(func() { close(c.done) })
	if c.client != nil && c.client.IsConnected() {
		c.logger.Info("Disconnecting from MQTT broker")
		c.client.Disconnect(250)
	}
	c.setConnected(false)
}

// GetClient returns the underlying client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock wires an MQTTClient around a provided client
func newMQTTClientWithMock(client mqtt.Client, config MQTTConfig, logger *zap.SugaredLogger, onStop StopHandler) *MQTTClient {
	return &MQTTClient{
		client:      client,
		config:      config,
		stopHandler: onStop,
		logger:      logger,
		done:        make(chan struct{}),
	}
}
