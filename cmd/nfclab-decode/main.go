// Command nfclab-decode reads an I/Q capture (WAV file or RTP multicast
// stream) and prints each decoded frame as a line of JSON, grounded on the
// front end's own flag-driven CLI tools (e.g. its IQ recorder).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/cwsl/nfclab/internal/config"
	"github.com/cwsl/nfclab/internal/diag"
	"github.com/cwsl/nfclab/internal/dispatch"
	"github.com/cwsl/nfclab/internal/iqsource"
	"github.com/cwsl/nfclab/internal/metrics"
	"github.com/cwsl/nfclab/internal/sink"
	"github.com/cwsl/nfclab/internal/tech"
)

// outputFrame is the JSON-lines record printed to stdout per emitted
// frame, per spec §6.
type outputFrame struct {
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

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (overrides other flags when set)")
	wavPath := flag.String("wav", "", "Path to a stereo 16-bit PCM WAV capture (left=I, right=Q)")
	rtpAddr := flag.String("rtp", "", "Multicast address:port to receive an RTP I/Q stream from")
	sampleRate := flag.Float64("sample-rate", 50e6, "I/Q sample rate in Hz (RTP mode only; WAV files carry their own rate)")
	ringCapacity := flag.Int("ring-capacity", 1<<16, "Sample ring capacity, must be a power of two >= 256")
	mqttBroker := flag.String("mqtt-broker", "", "MQTT broker URL to publish frames to, e.g. tcp://localhost:1883")
	mqttTopic := flag.String("mqtt-topic", "nfclab/frames", "MQTT topic to publish frames to")
	metricsAddr := flag.String("metrics-listen", "", "Prometheus listen address stored in the config, e.g. :9090 (no /metrics endpoint is served)")
	outputPath := flag.String("output", "", "Write JSON-lines frames to this file instead of stdout; a .gz suffix compresses the output")
	noPatternTimeoutMs := flag.Int("no-pattern-timeout-ms", 100, "How long NextFrame searches with no technology locked before reporting no-carrier/no-pattern")
	flag.Parse()

	var cfg *config.Config
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("nfclab-decode: %v", err)
		}
	} else {
		cfg = &config.Config{
			SampleRate:         *sampleRate,
			RingCapacity:       *ringCapacity,
			NoPatternTimeoutMs: *noPatternTimeoutMs,
			Source: config.SourceConfig{
				Kind: "wav",
				Path: *wavPath,
			},
		}
		if *rtpAddr != "" {
			cfg.Source.Kind = "rtp"
			cfg.Source.Multicast = *rtpAddr
		}
		cfg.MQTT.Broker = *mqttBroker
		cfg.MQTT.Topic = *mqttTopic
		if *mqttBroker != "" {
			cfg.MQTT.Enabled = true
		}
		if *metricsAddr != "" {
			cfg.Prometheus.Enabled = true
			cfg.Prometheus.Listen = *metricsAddr
		}
		if err := cfg.Validate(); err != nil {
			log.Fatalf("nfclab-decode: %v", err)
		}
	}

	src, fs, err := openSource(cfg)
	if err != nil {
		log.Fatalf("nfclab-decode: %v", err)
	}

	dec, err := dispatch.New(src, fs, cfg.RingCapacity)
	if err != nil {
		log.Fatalf("nfclab-decode: %v", err)
	}

	m := metrics.New()

	var mqttSink *sink.MQTTSink
	if cfg.MQTT.Enabled {
		mqttSink, err = sink.NewMQTTSink(cfg.MQTT.Broker, cfg.MQTT.Topic, cfg.MQTT.Username, cfg.MQTT.Password, 0)
		if err != nil {
			log.Fatalf("nfclab-decode: %v", err)
		}
		defer mqttSink.Close()
	}

	out, closeOut, err := openOutput(*outputPath)
	if err != nil {
		log.Fatalf("nfclab-decode: %v", err)
	}
	defer closeOut()
	enc := json.NewEncoder(out)

	var summary diag.Summary

	for {
		frame, result := dec.NextFrame(cfg.NoPatternTimeoutMs)
		switch result {
		case dispatch.FrameReady:
			emit(enc, frame)
			lockSeconds := frame.TimeEnd - frame.TimeStart
			m.ObserveFrame(frame.Tech.String(), frameTypeName(frame.FrameType), uint32(frame.Flags), len(frame.Data), lockSeconds)
			summary.Observe(lockSeconds, len(frame.Data))
			if mqttSink != nil {
				mqttSink.Publish(frame)
			}
		case dispatch.NoPattern:
			m.ObserveNoPattern()
			log.Printf("nfclab-decode: carrier present but no technology locked within %dms, continuing", cfg.NoPatternTimeoutMs)
		case dispatch.NoCarrier:
			log.Printf("nfclab-decode: no carrier detected within %dms, continuing", cfg.NoPatternTimeoutMs)
		case dispatch.End:
			r := summary.Report()
			log.Printf("nfclab-decode: %d frames, mean lock %.6fs (+/-%.6fs), mean length %.1f bytes (+/-%.1f)",
				r.Frames, r.MeanLockSeconds, r.StdDevLockSeconds, r.MeanFrameLength, r.StdDevFrameLength)
			return
		}
	}
}

// openOutput returns the JSON-lines destination writer: stdout if path is
// empty, a plain file, or a klauspost/compress gzip stream when path ends
// in .gz.
func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, func() { f.Close() }, nil
	}
	gz := gzip.NewWriter(f)
	return gz, func() {
		gz.Close()
		f.Close()
	}, nil
}

func openSource(cfg *config.Config) (dispatch.Source, float64, error) {
	switch cfg.Source.Kind {
	case "wav":
		s, err := iqsource.OpenWAV(cfg.Source.Path)
		if err != nil {
			return nil, 0, err
		}
		return s, s.SampleRate(), nil
	case "rtp":
		addr, err := net.ResolveUDPAddr("udp4", cfg.Source.Multicast)
		if err != nil {
			return nil, 0, fmt.Errorf("resolving source.multicast %q: %w", cfg.Source.Multicast, err)
		}
		var iface *net.Interface
		if cfg.Source.Interface != "" {
			iface, err = net.InterfaceByName(cfg.Source.Interface)
			if err != nil {
				return nil, 0, fmt.Errorf("resolving source.interface %q: %w", cfg.Source.Interface, err)
			}
		}
		s, err := iqsource.OpenRTP(addr, iface, cfg.SampleRate, cfg.Source.SSRC)
		if err != nil {
			return nil, 0, err
		}
		return s, cfg.SampleRate, nil
	default:
		return nil, 0, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}

func emit(enc *json.Encoder, f tech.RawFrame) {
	out := outputFrame{
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
	if err := enc.Encode(out); err != nil {
		log.Printf("nfclab-decode: encoding frame: %v", err)
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
