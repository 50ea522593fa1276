package control

import (
	"fmt"
	"io"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jamesrr39/goutil/errorsx"
)

// Replier sends results back over the channel a command came in on
type Replier interface {
	Reply(message string) errorsx.Error
	SendImage(pngBytes []byte) errorsx.Error
}

// WriterReplier writes text replies to one writer, and images to another
type WriterReplier struct {
	mu       sync.Mutex
	messages io.Writer
	images   io.Writer
}

func NewWriterReplier(messages, images io.Writer) *WriterReplier {
	return &WriterReplier{messages: messages, images: images}
}

func (r *WriterReplier) Reply(message string) errorsx.Error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := fmt.Fprintln(r.messages, message)
	if err != nil {
		return errorsx.Wrap(err)
	}
	return nil
}

func (r *WriterReplier) SendImage(pngBytes []byte) errorsx.Error {
	if r.images == nil {
		return errorsx.Errorf("this channel cannot receive images, give print a path")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.images.Write(pngBytes)
	if err != nil {
		return errorsx.Wrap(err)
	}
	return nil
}

// Publisher is the part of an MQTT client a reply needs
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

const publishTimeout = 5 * time.Second

// MQTTReplier publishes text replies and images to their own topics
type MQTTReplier struct {
	client      Publisher
	replyTopic  string
	imagesTopic string
	qos         byte
}

func NewMQTTReplier(client Publisher, replyTopic, imagesTopic string, qos byte) *MQTTReplier {
	return &MQTTReplier{client, replyTopic, imagesTopic, qos}
}

func (r *MQTTReplier) Reply(message string) errorsx.Error {
	return r.publish(r.replyTopic, []byte(message))
}

func (r *MQTTReplier) SendImage(pngBytes []byte) errorsx.Error {
	return r.publish(r.imagesTopic, pngBytes)
}

func (r *MQTTReplier) publish(topic string, payload []byte) errorsx.Error {
	if topic == "" {
		return errorsx.Errorf("no topic configured for this reply")
	}

	token := r.client.Publish(topic, r.qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errorsx.Errorf("timed out publishing to %q", topic)
	}

	err := token.Error()
	if err != nil {
		return errorsx.Wrap(err, "topic", topic)
	}

	return nil
}
