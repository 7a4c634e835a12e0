package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"i4.energy/across/smsbridge/gateway"
)

// Topics below the configured prefix.
const (
	TopicConfigWrite = "config/write"
	TopicConfigRead  = "config/read"
	TopicConfigState = "config/state"
	TopicNotify      = "notify"
	TopicAnnounce    = "announce"
	TopicSMSSend     = "sms/send"
	TopicSMSResult   = "sms/result"
)

const publishTimeout = 5 * time.Second

type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
}

// Sink receives configuration events. *Dispatcher implements it.
type Sink interface {
	Post(ev Event) bool
}

// Submitter sends an SMS. *gateway.Gateway implements it.
type Submitter interface {
	Submit(ctx context.Context, msg gateway.OutboundMessage) error
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
}

// SMSRequest is the payload of the sms/send topic. To is accepted as an
// alias of Phone.
type SMSRequest struct {
	ID      string `json:"id,omitempty"`
	Phone   string `json:"phone"`
	To      string `json:"to,omitempty"`
	Message string `json:"message"`
}

// SMSResult is published on sms/result for every request.
type SMSResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Announcement is the retained availability message on announce.
type Announcement struct {
	DeviceName  string `json:"deviceName"`
	Advertising bool   `json:"advertising"`
}

// MQTT carries the configuration channel and SMS submissions over an MQTT
// broker. It implements Notifier and Advertiser.
type MQTT struct {
	cfg        MQTTConfig
	client     mqtt.Client
	pub        publisher
	submit     Submitter
	deviceName func() string
	logger     *slog.Logger

	sink Sink
	ctx  context.Context
}

// NewMQTT prepares the client; Run connects it.
func NewMQTT(cfg MQTTConfig, submit Submitter, deviceName func() string, logger *slog.Logger) *MQTT {
	b := &MQTT{
		cfg:        cfg,
		submit:     submit,
		deviceName: deviceName,
		logger:     logger,
		ctx:        context.Background(),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetWill(b.topic(TopicAnnounce), `{"advertising":false}`, 1, true)
	opts.SetOnConnectHandler(b.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.logger.Warn("MQTT connection lost", "error", err)
		b.post(Event{Kind: Disconnected, Client: cfg.Broker})
	})

	b.client = mqtt.NewClient(opts)
	b.pub = b.client
	return b
}

// Run connects, hands events to sink and disconnects when ctx is done.
func (b *MQTT) Run(ctx context.Context, sink Sink) error {
	b.sink = sink
	b.ctx = ctx

	b.logger.Info("Connecting to MQTT broker", "broker", b.cfg.Broker)
	// With connect retry enabled the token only completes once connected.
	t := b.client.Connect()
	select {
	case <-t.Done():
		if err := t.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
	case <-ctx.Done():
	}

	<-ctx.Done()
	b.client.Disconnect(500)
	return ctx.Err()
}

func (b *MQTT) topic(name string) string {
	return strings.TrimSuffix(b.cfg.TopicPrefix, "/") + "/" + name
}

func (b *MQTT) post(ev Event) {
	if b.sink != nil {
		b.sink.Post(ev)
	}
}

func (b *MQTT) onConnect(c mqtt.Client) {
	b.logger.Info("MQTT connected", "prefix", b.cfg.TopicPrefix)
	subs := map[string]mqtt.MessageHandler{
		b.topic(TopicConfigWrite): b.handleConfigWrite,
		b.topic(TopicConfigRead):  b.handleConfigRead,
		b.topic(TopicSMSSend):     b.handleSMS,
	}
	for topic, handler := range subs {
		if token := c.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
			b.logger.Error("MQTT subscribe failed", "topic", topic, "error", token.Error())
		}
	}
	b.post(Event{Kind: Connected, Client: b.cfg.Broker})
}

func (b *MQTT) handleConfigWrite(_ mqtt.Client, m mqtt.Message) {
	b.post(Event{Kind: ConfigWrite, Client: m.Topic(), Payload: m.Payload()})
}

func (b *MQTT) handleConfigRead(_ mqtt.Client, m mqtt.Message) {
	b.post(Event{Kind: ConfigRead, Client: m.Topic(), Reply: func(data []byte) {
		if err := b.publish(TopicConfigState, false, data); err != nil {
			b.logger.Warn("Failed to publish configuration state", "error", err)
		}
	}})
}

// handleSMS submits in the background; paho delivers messages from a single
// goroutine and a submission can take a minute.
func (b *MQTT) handleSMS(_ mqtt.Client, m mqtt.Message) {
	var req SMSRequest
	if err := json.Unmarshal(m.Payload(), &req); err != nil {
		b.logger.Warn("MQTT bad SMS payload", "error", err)
		b.reply(SMSResult{Status: "fail", Error: "Invalid JSON"})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Phone == "" {
		req.Phone = req.To
	}

	go func() {
		err := b.submit.Submit(b.ctx, gateway.OutboundMessage{Phone: req.Phone, Message: req.Message})
		res := SMSResult{ID: req.ID, Status: "ok"}
		if err != nil {
			res.Status = "fail"
			res.Error = err.Error()
			if errors.Is(err, gateway.ErrSendFailed) {
				res.Error = gateway.ErrSendFailed.Error()
			}
		}
		b.reply(res)
	}()
}

func (b *MQTT) reply(res SMSResult) {
	data, _ := json.Marshal(res)
	if err := b.publish(TopicSMSResult, false, data); err != nil {
		b.logger.Warn("Failed to publish SMS result", "id", res.ID, "error", err)
	}
}

func (b *MQTT) publish(name string, retained bool, payload []byte) error {
	t := b.pub.Publish(b.topic(name), 1, retained, payload)
	if !t.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timed out", name)
	}
	return t.Error()
}

func (b *MQTT) Notify(_ context.Context, msg string) error {
	return b.publish(TopicNotify, false, []byte(msg))
}

func (b *MQTT) StartAdvertising(context.Context) error {
	return b.announce(true)
}

func (b *MQTT) StopAdvertising(context.Context) error {
	return b.announce(false)
}

func (b *MQTT) announce(on bool) error {
	data, err := json.Marshal(Announcement{DeviceName: b.deviceName(), Advertising: on})
	if err != nil {
		return err
	}
	return b.publish(TopicAnnounce, true, data)
}

var (
	_ Notifier   = (*MQTT)(nil)
	_ Advertiser = (*MQTT)(nil)
)
