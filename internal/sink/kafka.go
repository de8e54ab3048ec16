package sink

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"reorgcdc/core"
)

// KafkaSink publishes each CDC message as a JSON-encoded message, mirroring
// the reference KafkaSink's topic-keyed publish. No Kafka client is
// available in this build, so this binds to nats-io/nats.go;
// BootstrapServers is used as the NATS server URL and Topic as
// the subject name, preserving the reference wire field names despite the
// substituted transport.
type KafkaSink struct {
	mu    sync.Mutex
	conn  *nats.Conn
	topic string
}

func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	opts := []nats.Option{}
	if cfg.ClientID != "" {
		opts = append(opts, nats.Name(cfg.ClientID))
	}
	conn, err := nats.Connect(cfg.BootstrapServers, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: connect kafka sink: %v", core.ErrSink, err)
	}
	return &KafkaSink{conn: conn, topic: cfg.Topic}, nil
}

func (s *KafkaSink) Send(messages []core.CdcMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range messages {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("%w: serialize cdc message: %v", core.ErrSerialization, err)
		}
		msg := &nats.Msg{
			Subject: s.topic,
			Data:    b,
			Header:  nats.Header{"key": []string{m.Payload.Key}},
		}
		if err := s.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("%w: publish cdc message: %v", core.ErrSink, err)
		}
	}
	return nil
}

func (s *KafkaSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.Flush(); err != nil {
		return fmt.Errorf("%w: flush kafka sink: %v", core.ErrSink, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.Close()
	return nil
}
