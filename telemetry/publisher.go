package telemetry

import (
	"context"
	"io"

	mqtt "github.com/soypat/natiu-mqtt"
)

// Publisher streams telemetry frames to an MQTT broker over any
// stream transport (a TCP connection from netlink, a serial bridge).
// QoS0 only: a dropped frame is worth less than a stalled control
// board.
type Publisher struct {
	client *mqtt.Client
	topic  []byte
	buf    []byte
}

// NewPublisher returns a publisher for the given topic. The decode
// buffer is fixed at setup so publishing does not allocate.
func NewPublisher(topic string) *Publisher {
	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 1500)},
		OnPub: func(_ mqtt.Header, _ mqtt.VariablesPublish, _ io.Reader) error {
			return nil
		},
	})
	return &Publisher{
		client: client,
		topic:  []byte(topic),
		buf:    make([]byte, 0, 256),
	}
}

// Connect performs the MQTT connect handshake over the given
// transport.
func (p *Publisher) Connect(ctx context.Context, conn io.ReadWriteCloser, clientID string) error {
	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(clientID))
	return p.client.Connect(ctx, conn, &varconn)
}

// Publish encodes the snapshot and sends it as one QoS0 message.
func (p *Publisher) Publish(s Snapshot) error {
	flags, err := mqtt.NewPublishFlags(mqtt.QoS0, false, false)
	if err != nil {
		return err
	}
	p.buf = AppendFrame(p.buf[:0], s)
	return p.client.PublishPayload(flags, mqtt.VariablesPublish{
		TopicName: p.topic,
	}, p.buf)
}

// Ping checks the broker connection.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Disconnect closes the MQTT session.
func (p *Publisher) Disconnect() error {
	return p.client.Disconnect(Error("telemetry: publisher closed"))
}
