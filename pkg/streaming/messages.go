// Package streaming defines the JSON frames exchanged with a command bridge
// over WebSocket. The framing follows the rosbridge convention: an op, a
// topic, and a message body.
package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/actorsteer/actorsteer/pkg/core"
)

// Ops understood by the subscriber.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPublish     = "publish"
)

// TwistType is the message type advertised when subscribing to a velocity topic.
const TwistType = "geometry_msgs/Twist"

// Envelope wraps all frames sent over the WebSocket.
type Envelope struct {
	Op    string          `json:"op"`
	Topic string          `json:"topic,omitempty"`
	Type  string          `json:"type,omitempty"`
	Msg   json.RawMessage `json:"msg,omitempty"`

	// QueueLength asks the bridge to keep at most this many pending
	// messages for us. Velocity subscriptions use 1.
	QueueLength int `json:"queue_length,omitempty"`
}

// Subscribe builds a subscribe frame.
func Subscribe(topic, msgType string, queueLength int) Envelope {
	return Envelope{Op: OpSubscribe, Topic: topic, Type: msgType, QueueLength: queueLength}
}

// PublishTwist builds a publish frame carrying a Twist.
func PublishTwist(topic string, t core.Twist) (Envelope, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal twist: %w", err)
	}
	return Envelope{Op: OpPublish, Topic: topic, Msg: body}, nil
}
