package slam

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotConnected is returned when publishing without a broker connection
var ErrNotConnected = errors.New("MQTT client not connected")

// PoseMessage is the payload published after every resampling cycle
type PoseMessage struct {
	RunID      string  `json:"runId"`
	Cycle      int     `json:"cycle"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Angle      float64 `json:"angle"` // degrees, 0 = +X, CCW
	Weight     float64 `json:"weight"`
	ESS        float64 `json:"ess"`
	Degenerate bool    `json:"degenerate,omitempty"`
	Timestamp  int64   `json:"timestamp"`
}

// Publisher publishes the best pose of each cycle to <prefix>/pose. The map
// itself is never published.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	runID         string
	qos           byte
	retain        bool
	logger        *zap.SugaredLogger

	mu   sync.RWMutex
	last *PoseMessage
}

// NewPublisher creates a pose publisher. Each publisher gets a fresh run ID
// so consumers can tell runs apart.
func NewPublisher(client mqtt.Client, prefix string, logger *zap.SugaredLogger) *Publisher {
	if prefix == "" {
		prefix = "roverslam"
	}
	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		runID:         uuid.NewString(),
		qos:           0,
		retain:        true,
		logger:        logger,
	}
}

// RunID identifies this run in every published message
func (p *Publisher) RunID() string {
	return p.runID
}

// Topic returns the pose topic
func (p *Publisher) Topic() string {
	return fmt.Sprintf("%s/pose", p.publishPrefix)
}

// PublishCycle publishes the best pose of a completed cycle
func (p *Publisher) PublishCycle(stats CycleStats) error {
	msg := &PoseMessage{
		RunID:      p.runID,
		Cycle:      stats.Cycle,
		X:          stats.BestPose.Pt.X,
		Y:          stats.BestPose.Pt.Y,
		Angle:      Degrees(stats.BestPose.Yaw),
		Weight:     stats.BestWeight,
		ESS:        stats.EffectiveSampleSize,
		Degenerate: stats.Degenerate,
		Timestamp:  time.Now().Unix(),
	}

	p.mu.Lock()
	p.last = msg
	p.mu.Unlock()

	if p.client == nil || !p.client.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling pose: %w", err)
	}

	topic := p.Topic()
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	p.logger.Debugw("Published pose",
		"cycle", msg.Cycle, "x", msg.X, "y", msg.Y, "angle", msg.Angle)
	return nil
}

// Last returns a copy of the most recent pose message, published or not
func (p *Publisher) Last() (PoseMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return PoseMessage{}, false
	}
	return *p.last, true
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
