package source

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// PahoOptions configures the broker connection.
type PahoOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// PahoSubscriber is a Subscriber backed by an Eclipse Paho client. It
// re-subscribes after every reconnect.
type PahoSubscriber struct {
	client paho.Client
	log    *zap.Logger

	mu   sync.Mutex
	subs map[string]paho.MessageHandler
	qos  map[string]byte
}

// NewPahoSubscriber connects to the broker.
func NewPahoSubscriber(o PahoOptions, log *zap.Logger) (*PahoSubscriber, error) {
	s := &PahoSubscriber{
		log:  log,
		subs: make(map[string]paho.MessageHandler),
		qos:  make(map[string]byte),
	}
	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(s.resubscribe).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("mqtt connection lost", zap.Error(err))
		})
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	s.client = paho.NewClient(opts)
	token := s.client.Connect()
	// With ConnectRetry the client keeps trying until Disconnect, so a
	// failed attempt must stop it.
	if !token.WaitTimeout(10 * time.Second) {
		s.client.Disconnect(0)
		return nil, fmt.Errorf("connect to %s: timeout", o.Broker)
	}
	if err := token.Error(); err != nil {
		s.client.Disconnect(0)
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return s, nil
}

func (s *PahoSubscriber) Subscribe(topic string, qos byte, handler MessageHandler) error {
	h := func(_ paho.Client, msg paho.Message) { handler(msg.Topic(), msg.Payload()) }
	s.mu.Lock()
	s.subs[topic] = h
	s.qos[topic] = qos
	s.mu.Unlock()

	token := s.client.Subscribe(topic, qos, h)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout")
	}
	return token.Error()
}

func (s *PahoSubscriber) resubscribe(c paho.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, h := range s.subs {
		if token := c.Subscribe(topic, s.qos[topic], h); token.WaitTimeout(5*time.Second) && token.Error() != nil {
			s.log.Warn("mqtt resubscribe", zap.String("topic", topic), zap.Error(token.Error()))
		}
	}
}

// Close disconnects from the broker.
func (s *PahoSubscriber) Close() error {
	s.client.Disconnect(1000) // 1 second timeout
	return nil
}
