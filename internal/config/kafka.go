package config

import (
	"time"
)

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RequiredAcks int           `yaml:"required_acks"`
}

// EventsConfig selects where domain events go after a transaction commits.
type EventsConfig struct {
	Backend string `yaml:"backend"` // redis, kafka, none
	Channel string `yaml:"channel"` // redis pub/sub channel
}

func defaultKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "cargoride.service-events",
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: -1,
	}
}

func applyKafkaEnv(k *KafkaConfig, e *EventsConfig) {
	k.Brokers = getEnvAsSlice("KAFKA_BROKERS", k.Brokers)
	k.Topic = getEnv("KAFKA_TOPIC", k.Topic)
	k.BatchTimeout = getEnvAsDuration("KAFKA_BATCH_TIMEOUT", k.BatchTimeout)
	k.WriteTimeout = getEnvAsDuration("KAFKA_WRITE_TIMEOUT", k.WriteTimeout)
	k.RequiredAcks = getEnvAsInt("KAFKA_REQUIRED_ACKS", k.RequiredAcks)

	e.Backend = getEnv("EVENTS_BACKEND", e.Backend)
	e.Channel = getEnv("EVENTS_CHANNEL", e.Channel)
}
