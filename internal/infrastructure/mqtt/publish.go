package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/stagelink/tally-core/internal/device"
	"github.com/stagelink/tally-core/internal/obs"
)

// maxPayloadSize bounds a single MQTT message (1MB).
const maxPayloadSize = 1 << 20

// Publish sends a message to the specified MQTT topic.
//
// Retained messages should be used for state topics only: the broker
// stores the last message per topic and hands it to new subscribers.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishTally publishes a device's tally state, retained, on its
// per-device topic.
func (c *Client) PublishTally(deviceID string, status device.StatusPayload) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("%w: encoding tally payload: %w", ErrPublishFailed, err)
	}
	return c.Publish(Topics{}.TallyStatus(deviceID), payload, byte(c.cfg.QoS), true)
}

// PublishOBSStatus publishes the OBS connection state, retained.
func (c *Client) PublishOBSStatus(status obs.Status) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("%w: encoding obs status: %w", ErrPublishFailed, err)
	}
	return c.Publish(Topics{}.OBSStatus(), payload, byte(c.cfg.QoS), true)
}
