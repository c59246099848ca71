package mqttclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// publishQoS is at-least-once: a duplicate completion event is harmless,
// a missing one is not.
const publishQoS = 1

// DoneEvent is published once per finished operation.
type DoneEvent struct {
	Name      string    `json:"name"`
	Done      bool      `json:"done"`
	StoredKey string    `json:"stored_key,omitempty"`
	Time      time.Time `json:"time"`
}

type Client struct {
	conn  mqtt.Client
	topic string
	log   zerolog.Logger
	now   func() time.Time
}

type Options struct {
	BrokerURL string
	ClientID  string
	Topic     string
	Username  string
	Password  string
	Log       zerolog.Logger
}

func Connect(opts Options) (*Client, error) {
	c := &Client{
		topic: opts.Topic,
		log:   opts.Log,
		now:   time.Now,
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(false).
		SetConnectionLostHandler(c.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	c.conn = mqtt.NewClient(clientOpts)
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", opts.BrokerURL, err)
	}
	c.log.Info().Str("broker", opts.BrokerURL).Str("topic", c.topic).Msg("mqtt connected")

	return c, nil
}

// PublishDone announces that the named operation finished. It blocks until
// the broker acknowledges or ctx ends.
func (c *Client) PublishDone(ctx context.Context, name, storedKey string) error {
	payload, err := json.Marshal(DoneEvent{
		Name:      name,
		Done:      true,
		StoredKey: storedKey,
		Time:      c.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	token := c.conn.Publish(c.topic, publishQoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", c.topic, err)
	}

	c.log.Debug().Str("topic", c.topic).Str("operation", name).Msg("completion published")
	return nil
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.log.Warn().Err(err).Msg("mqtt connection lost")
}

func (c *Client) Close() {
	c.log.Info().Msg("disconnecting mqtt client")
	c.conn.Disconnect(1000)
}
