package control

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
)

const (
	subscribeTimeout = 5 * time.Second
	connectTimeout   = 10 * time.Second
	mqttLineBuffer   = 16
)

// MQTTClient is the part of a paho client the reader uses
type MQTTClient interface {
	Publisher
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

type MQTTTopics struct {
	Commands string
	Replies  string
	Images   string
}

// MQTTReader takes commands from a topic. Each message is one line of commands.
type MQTTReader struct {
	logger  *logpkg.Logger
	client  MQTTClient
	topics  MQTTTopics
	qos     byte
	handler Handler
	replier Replier
}

func NewMQTTReader(logger *logpkg.Logger, client MQTTClient, topics MQTTTopics, qos byte, handler Handler) *MQTTReader {
	return &MQTTReader{
		logger:  logger,
		client:  client,
		topics:  topics,
		qos:     qos,
		handler: handler,
		replier: NewMQTTReplier(client, topics.Replies, topics.Images, qos),
	}
}

// Run subscribes to the commands topic, and hands each message to the handler until ctx is done.
func (r *MQTTReader) Run(ctx context.Context) errorsx.Error {
	lines := make(chan string, mqttLineBuffer)

	token := r.client.Subscribe(r.topics.Commands, r.qos, func(client mqtt.Client, msg mqtt.Message) {
		select {
		case lines <- string(msg.Payload()):
		default:
			r.logger.Warn("command queue full, dropping message %d from %q", msg.MessageID(), msg.Topic())
		}
	})
	if !token.WaitTimeout(subscribeTimeout) {
		return errorsx.Errorf("timed out subscribing to %q", r.topics.Commands)
	}
	err := token.Error()
	if err != nil {
		return errorsx.Wrap(err, "topic", r.topics.Commands)
	}

	r.logger.Info("listening for commands on %q", r.topics.Commands)

	for {
		select {
		case <-ctx.Done():
			token = r.client.Unsubscribe(r.topics.Commands)
			if !token.WaitTimeout(subscribeTimeout) {
				r.logger.Warn("timed out unsubscribing from %q", r.topics.Commands)
			}
			return nil
		case line := <-lines:
			r.handler.Handle(ctx, line, r.replier)
		}
	}
}

type MQTTConnectOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// ConnectMQTT connects to a broker. A client id is generated if none is given.
func ConnectMQTT(logger *logpkg.Logger, options MQTTConnectOptions) (mqtt.Client, errorsx.Error) {
	clientID := options.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("paparazzi-%s", uuid.New().String())
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(options.Broker)
	opts.SetClientID(clientID)
	opts.SetUsername(options.Username)
	opts.SetPassword(options.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(c mqtt.Client) {
		logger.Info("mqtt connection established to %q as %q", options.Broker, clientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		logger.Warn("mqtt connection to %q lost, reconnecting: %s", options.Broker, err)
	}

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errorsx.Errorf("timed out connecting to mqtt broker %q", options.Broker)
	}
	err := token.Error()
	if err != nil {
		return nil, errorsx.Wrap(err, "broker", options.Broker)
	}

	return client, nil
}
