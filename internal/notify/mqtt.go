package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"dorm-engine/internal/domain"
)

// mqttPublisher 由 internal/mqtt.Client 实现
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTPublisher 发布到 <topic>/<user_id>，广播发布到 <topic>/broadcast
type MQTTPublisher struct {
	client mqttPublisher
	topic  string
	qos    byte
}

func NewMQTTPublisher(client mqttPublisher, topic string, qos byte) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic, qos: qos}
}

func (p *MQTTPublisher) Name() string { return "mqtt:" + p.topic }

// TopicFor 通知对应的主题
func (p *MQTTPublisher) TopicFor(n *domain.Notification) string {
	if n.UserID == "" {
		return p.topic + "/broadcast"
	}
	return p.topic + "/" + n.UserID
}

func (p *MQTTPublisher) Publish(_ context.Context, n *domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	return p.client.Publish(p.TopicFor(n), p.qos, false, payload)
}
