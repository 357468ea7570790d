package events

import (
	"encoding/json"
	"time"

	"github.com/dkeye/callhub/internal/core"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Publisher is the part of *nats.Conn the sink uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NatsSink publishes coordinator events as JSON on <prefix>.<topic>.
type NatsSink struct {
	pub    Publisher
	prefix string
}

var (
	_ core.EventSink = (*NatsSink)(nil)
	_ core.EventSink = NopSink{}
)

func NewNatsSink(pub Publisher, prefix string) *NatsSink {
	return &NatsSink{pub: pub, prefix: prefix}
}

func (s *NatsSink) Subject(topic string) string {
	if s.prefix == "" {
		return topic
	}
	return s.prefix + "." + topic
}

func (s *NatsSink) Publish(topic string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "events").Str("topic", topic).Msg("marshal event")
		return
	}
	if err := s.pub.Publish(s.Subject(topic), data); err != nil {
		log.Warn().Err(err).Str("module", "events").Str("topic", topic).Msg("publish event")
	}
}

// Connect dials NATS and keeps reconnecting for the life of the process.
func Connect(url, name string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Str("module", "events").Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("module", "events").Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Publish(string, any) {}
