package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"nppestool/npdata"
)

// producer is the part of *kgo.Client the sink uses.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Flush(ctx context.Context) error
	Close()
}

type KafkaConfig struct {
	Brokers   []string
	Topic     string
	BatchSize int
	Linger    time.Duration
}

// KafkaSink publishes providers as JSON records keyed by NPI.
type KafkaSink struct {
	client producer
	topic  string
	batch  int
	logger *zap.Logger
}

func NewKafkaSink(cfg KafkaConfig, logger *zap.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, &npdata.Error{Kind: npdata.KindConfiguration, Message: "kafka brokers and topic are required"}
	}
	if cfg.Linger == 0 {
		cfg.Linger = 50 * time.Millisecond
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerLinger(cfg.Linger),
		kgo.ProducerBatchCompression(kgo.Lz4Compression()),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, exportError("create kafka client", "", err)
	}
	return newKafkaSink(client, cfg.Topic, cfg.BatchSize, logger), nil
}

func newKafkaSink(client producer, topic string, batch int, logger *zap.Logger) *KafkaSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batch <= 0 {
		batch = 1000
	}
	return &KafkaSink{client: client, topic: topic, batch: batch, logger: logger}
}

// Publish sends providers in batches and waits for each batch to be
// acknowledged. It returns the number of records acknowledged.
func (s *KafkaSink) Publish(ctx context.Context, providers []*npdata.Provider) (int, error) {
	ctx, span := tracer.Start(ctx, "export.kafka_publish",
		trace.WithAttributes(
			attribute.String("topic", s.topic),
			attribute.Int("providers", len(providers)),
		))
	defer span.End()

	sent := 0
	records := make([]*kgo.Record, 0, s.batch)
	for lo := 0; lo < len(providers); lo += s.batch {
		records = records[:0]
		for _, p := range providers[lo:min(lo+s.batch, len(providers))] {
			value, err := json.Marshal(p)
			if err != nil {
				return sent, exportError("encode provider "+string(p.NPI), "", err)
			}
			records = append(records, &kgo.Record{
				Topic: s.topic,
				Key:   []byte(p.NPI),
				Value: value,
				Headers: []kgo.RecordHeader{
					{Key: "entity_type", Value: []byte(p.EntityType.Code())},
				},
			})
		}
		results := s.client.ProduceSync(ctx, records...)
		for _, r := range results {
			if r.Err == nil {
				sent++
			}
		}
		if err := results.FirstErr(); err != nil {
			span.RecordError(err)
			s.logger.Error("kafka publish failed",
				zap.String("topic", s.topic),
				zap.Int("sent", sent),
				zap.Error(err))
			return sent, exportError(fmt.Sprintf("publish to %s", s.topic), "", err)
		}
	}
	s.logger.Info("kafka publish complete", zap.String("topic", s.topic), zap.Int("records", sent))
	return sent, nil
}

// Close flushes buffered records and closes the client.
func (s *KafkaSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.client.Flush(ctx); err != nil {
		s.logger.Warn("error flushing on close", zap.Error(err))
	}
	s.client.Close()
	return nil
}
