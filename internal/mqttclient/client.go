package mqttclient

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Command is a remote action received on {prefix}/command.
type Command struct {
	Action  string          `json:"action"`
	Options json.RawMessage `json:"options,omitempty"`
}

type CommandHandler func(Command)

type Client struct {
	conn      mqtt.Client
	prefix    string
	connected atomic.Bool
	log       zerolog.Logger
	handler   atomic.Pointer[CommandHandler]
}

type Options struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
	Log         zerolog.Logger
}

func Connect(opts Options) (*Client, error) {
	c := &Client{
		prefix: strings.TrimSuffix(opts.TopicPrefix, "/"),
		log:    opts.Log,
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5*time.Second).
		SetOrderMatters(false).
		SetWill(c.Topic("status"), "offline", 1, true).
		SetOnConnectHandler(c.onConnect).
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
		return nil, err
	}

	return c, nil
}

// Topic joins the configured prefix and name.
func (c *Client) Topic(name string) string {
	if c.prefix == "" {
		return name
	}
	return c.prefix + "/" + name
}

func (c *Client) SetCommandHandler(h CommandHandler) {
	c.handler.Store(&h)
}

func (c *Client) onConnect(client mqtt.Client) {
	c.connected.Store(true)
	topic := c.Topic("command")
	c.log.Info().Str("topic", topic).Msg("mqtt connected, subscribing")

	token := client.Subscribe(topic, 1, c.onCommand)
	token.Wait()
	if err := token.Error(); err != nil {
		c.log.Error().Err(err).Msg("mqtt subscribe failed")
	}
	if err := c.Publish(c.Topic("status"), true, []byte("online")); err != nil {
		c.log.Warn().Err(err).Msg("mqtt status publish failed")
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

func (c *Client) onCommand(_ mqtt.Client, msg mqtt.Message) {
	cmd, err := ParseCommand(msg.Payload())
	if err != nil {
		c.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("ignoring malformed command")
		return
	}
	if h := c.handler.Load(); h != nil {
		(*h)(cmd)
		return
	}
	c.log.Debug().Str("action", cmd.Action).Msg("command received without handler")
}

// ParseCommand decodes a command payload. A bare action name is accepted too.
func ParseCommand(payload []byte) (Command, error) {
	var cmd Command
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return cmd, fmt.Errorf("empty command")
	}
	if !strings.HasPrefix(trimmed, "{") {
		cmd.Action = trimmed
		return cmd, nil
	}
	if err := json.Unmarshal([]byte(trimmed), &cmd); err != nil {
		return cmd, fmt.Errorf("decode command: %w", err)
	}
	if cmd.Action == "" {
		return cmd, fmt.Errorf("command without action")
	}
	return cmd, nil
}

// Publish sends payload at QoS 1 and waits briefly for the broker.
func (c *Client) Publish(topic string, retained bool, payload []byte) error {
	token := c.conn.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	return token.Error()
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) Close() {
	c.log.Info().Msg("disconnecting mqtt client")
	if err := c.Publish(c.Topic("status"), true, []byte("offline")); err != nil {
		c.log.Debug().Err(err).Msg("mqtt offline status not delivered")
	}
	c.conn.Disconnect(1000)
}
