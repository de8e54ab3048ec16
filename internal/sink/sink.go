// Package sink implements the CDC output destinations: console, file,
// postgres, and kafka, each built against whichever concrete client
// library best fits that concern (see the PostgresSink and KafkaSink doc
// comments in postgres.go and kafka.go for the client substitutions).
package sink

import (
	"fmt"

	"reorgcdc/core"
)

// Sink is the capability every CDC output destination implements, mirroring
// the reference CdcSink trait's send/flush/close triad.
type Sink interface {
	Send(messages []core.CdcMessage) error
	Flush() error
	Close() error
}

// Config discriminates the four sink kinds. Exactly one of the embedded
// configs is populated, selected by Kind.
type Config struct {
	Kind     Kind
	Console  ConsoleConfig
	File     FileConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
}

// Kind names a sink variant.
type Kind string

const (
	KindConsole  Kind = "console"
	KindFile     Kind = "file"
	KindPostgres Kind = "postgres"
	KindKafka    Kind = "kafka"
)

// ConsoleConfig mirrors the reference SinkConfig::Console variant.
type ConsoleConfig struct {
	PrettyPrint bool
}

// FileConfig mirrors the reference SinkConfig::File variant.
type FileConfig struct {
	Path          string
	Append        bool
	FlushInterval uint64 // milliseconds
}

// PostgresConfig mirrors the reference SinkConfig::Postgres variant's wire
// fields; see postgres.go for the note on which Go client actually serves it.
type PostgresConfig struct {
	ConnectionString string
	Schema           string
	BatchSize        int
	FlushInterval    uint64 // milliseconds
}

// KafkaConfig mirrors the reference SinkConfig::Kafka variant's wire fields;
// see kafka.go for the note on which Go client actually serves it.
type KafkaConfig struct {
	BootstrapServers string
	Topic            string
	ClientID         string
	BatchSize        int
	FlushInterval    uint64 // milliseconds
}

// New builds the concrete Sink named by cfg.Kind.
func New(cfg Config) (Sink, error) {
	switch cfg.Kind {
	case KindConsole:
		return NewConsoleSink(cfg.Console.PrettyPrint), nil
	case KindFile:
		return NewFileSink(cfg.File.Path, cfg.File.Append, cfg.File.FlushInterval)
	case KindPostgres:
		return NewPostgresSink(cfg.Postgres)
	case KindKafka:
		return NewKafkaSink(cfg.Kafka)
	default:
		return nil, fmt.Errorf("%w: unknown sink kind %q", core.ErrConfiguration, cfg.Kind)
	}
}
