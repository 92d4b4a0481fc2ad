// Package sink implements frame-consumer outputs: MQTT publishing and a
// websocket broadcaster, grounded on the front end's own MQTTPublisher and
// session-broadcast patterns.
package sink

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/cwsl/nfclab/internal/tech"
)

// MQTTSink publishes every emitted RawFrame as a JSON message to a single
// MQTT topic.
type MQTTSink struct {
	client mqtt.Client
	topic  string
	qos    byte
}

// framePayload is the wire representation of one published frame.
type framePayload struct {
	Tech        string  `json:"tech"`
	FrameType   string  `json:"frame_type"`
	Phase       string  `json:"phase"`
	SampleStart uint64  `json:"sample_start"`
	SampleEnd   uint64  `json:"sample_end"`
	TimeStart   float64 `json:"time_start"`
	TimeEnd     float64 `json:"time_end"`
	SymbolRate  int     `json:"symbol_rate"`
	Flags       uint32  `json:"flags"`
	DataHex     string  `json:"data_hex"`
}

func generateClientID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "nfclab_" + hex.EncodeToString(b)
}

// NewMQTTSink connects to broker and returns a sink that publishes to
// topic.
func NewMQTTSink(broker, topic, username, password string, qos byte) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(generateClientID())
	if username != "" {
		opts.SetUsername(username)
	}
	if password != "" {
		opts.SetPassword(password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Println("mqtt sink: connected to broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("mqtt sink: connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("sink: mqtt connect: %w", token.Error())
	}
	return &MQTTSink{client: client, topic: topic, qos: qos}, nil
}

// Publish serializes and publishes one frame. Publish errors are logged,
// not returned, so a slow/unreachable broker never stalls the decoder.
func (s *MQTTSink) Publish(f tech.RawFrame) {
	data, err := json.Marshal(toPayload(f))
	if err != nil {
		log.Printf("mqtt sink: marshal frame: %v", err)
		return
	}
	token := s.client.Publish(s.topic, s.qos, false, data)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("mqtt sink: publish: %v", err)
		}
	}()
}

// Close disconnects the MQTT client.
func (s *MQTTSink) Close() { s.client.Disconnect(250) }

func toPayload(f tech.RawFrame) framePayload {
	return framePayload{
		Tech:        f.Tech.String(),
		FrameType:   frameTypeName(f.FrameType),
		Phase:       phaseName(f.Phase),
		SampleStart: f.SampleStart,
		SampleEnd:   f.SampleEnd,
		TimeStart:   f.TimeStart,
		TimeEnd:     f.TimeEnd,
		SymbolRate:  f.SymbolRate,
		Flags:       uint32(f.Flags),
		DataHex:     hexString(f.Data),
	}
}

func hexString(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0x0f]
	}
	return string(out)
}

func frameTypeName(ft tech.FrameType) string {
	switch ft {
	case tech.PollFrame:
		return "poll"
	case tech.ListenFrame:
		return "listen"
	case tech.AtrFrame:
		return "atr"
	case tech.PpsFrame:
		return "pps"
	case tech.TpduFrame:
		return "tpdu"
	case tech.T1BlockFrame:
		return "t1_block"
	default:
		return "none"
	}
}

func phaseName(p tech.Phase) string {
	switch p {
	case tech.SenseFrame:
		return "sense"
	case tech.SelectionFrame:
		return "selection"
	case tech.ApplicationFrame:
		return "application"
	case tech.StartupPhase:
		return "startup"
	default:
		return "carrier"
	}
}
