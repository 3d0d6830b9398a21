// Package publisher streams committed audit entries to Kafka for downstream
// compliance tooling (SIEM, long-retention archival). The store remains the
// source of truth; publishing is best-effort and never blocks or fails the
// recording path.
package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"custodia/internal/audit"
	"custodia/pkg/platform/circuit"
)

// probeEvery is how many shed entries pass between probe publishes while the
// circuit is open.
const probeEvery = 50

// Kafka publishes audit entries as JSON records keyed by accessor ID so one
// accessor's trail stays ordered within a partition. A circuit breaker sheds
// publishes while the brokers are down instead of piling up buffered records.
type Kafka struct {
	client  *kgo.Client
	topic   string
	logger  *slog.Logger
	breaker *circuit.Breaker
	shed    atomic.Uint64
}

// NewKafka connects to the brokers and ensures the audit topic exists.
func NewKafka(brokers []string, topic string, logger *slog.Logger) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProduceRequestTimeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}

	adm := kadm.NewClient(client)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Idempotent: exists errors are ignored, real connectivity errors are not.
	if _, err := adm.CreateTopic(ctx, 1, -1, nil, topic); err != nil && !kgo.IsRetryableBrokerErr(err) {
		logger.Warn("audit topic ensure", "topic", topic, "error", err)
	}

	return &Kafka{
		client:  client,
		topic:   topic,
		logger:  logger,
		breaker: circuit.New("audit-kafka", circuit.WithFailureThreshold(10)),
	}, nil
}

type record struct {
	ID            string   `json:"id"`
	TenantID      string   `json:"tenant_id,omitempty"`
	AccessorKind  string   `json:"accessor_kind"`
	AccessorID    string   `json:"accessor_id"`
	AccessorEmail string   `json:"accessor_email,omitempty"`
	DataCategory  string   `json:"data_category"`
	ResourceType  string   `json:"resource_type"`
	ResourceID    string   `json:"resource_id,omitempty"`
	Fields        []string `json:"fields,omitempty"`
	AccessKind    string   `json:"access_kind"`
	Reason        string   `json:"reason,omitempty"`
	RiskTier      string   `json:"risk_tier"`
	CreatedAt     string   `json:"created_at"`
}

// Publish sends the entry asynchronously. Delivery failures are logged, never
// returned; the entry is already durable in the store.
func (k *Kafka) Publish(ctx context.Context, entry audit.Entry) {
	if k.breaker.IsOpen() && k.shed.Add(1)%probeEvery != 0 {
		// Shed while the brokers are down; every probeEvery-th entry still goes
		// out so delivery callbacks can close the circuit again.
		return
	}
	payload := record{
		ID:            entry.ID.String(),
		AccessorKind:  string(entry.AccessorKind),
		AccessorID:    entry.AccessorID.String(),
		AccessorEmail: entry.AccessorEmail,
		DataCategory:  string(entry.DataCategory),
		ResourceType:  entry.ResourceType,
		ResourceID:    entry.ResourceID,
		Fields:        entry.Fields,
		AccessKind:    string(entry.AccessKind),
		Reason:        string(entry.Reason),
		RiskTier:      string(entry.RiskTier),
		CreatedAt:     entry.CreatedAt.Format(time.RFC3339Nano),
	}
	if entry.TenantID != nil {
		payload.TenantID = entry.TenantID.String()
	}
	value, err := json.Marshal(payload)
	if err != nil {
		k.logger.ErrorContext(ctx, "marshal audit record", "error", err)
		return
	}

	k.client.Produce(context.WithoutCancel(ctx), &kgo.Record{
		Topic: k.topic,
		Key:   []byte(payload.AccessorID),
		Value: value,
	}, func(_ *kgo.Record, err error) {
		if err != nil {
			if _, change := k.breaker.RecordFailure(); change.Opened {
				k.logger.Error("audit publisher circuit opened", "topic", k.topic)
			}
			k.logger.Error("audit record publish failed", "error", err, "entry_id", payload.ID)
			return
		}
		if _, change := k.breaker.RecordSuccess(); change.Closed {
			k.logger.Info("audit publisher circuit closed", "topic", k.topic)
		}
	})
}

// Close flushes pending records and releases the client.
func (k *Kafka) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = k.client.Flush(ctx)
	k.client.Close()
}
