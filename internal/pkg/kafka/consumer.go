package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/ds124wfegd/imgsqueeze/internal/entity"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// StatsTotals is the running summary kept by the stats consumer.
type StatsTotals struct {
	mu              sync.Mutex
	Requests        int64
	Files           int64
	Failures        int64
	OriginalBytes   int64
	CompressedBytes int64
	ByFormat        map[entity.Format]int64
	ByFailure       map[entity.FailureKind]int64
}

func NewStatsTotals() *StatsTotals {
	return &StatsTotals{
		ByFormat:  make(map[entity.Format]int64),
		ByFailure: make(map[entity.FailureKind]int64),
	}
}

func (s *StatsTotals) Add(ev entity.CompressionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Requests++
	s.OriginalBytes += ev.TotalOriginalBytes
	s.CompressedBytes += ev.TotalCompressedBytes
	for _, f := range ev.Files {
		s.Files++
		if f.Failure != "" {
			s.Failures++
			s.ByFailure[f.Failure]++
			continue
		}
		s.ByFormat[f.OutputFormat]++
	}
}

func (s *StatsTotals) Ratio() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entity.CompressionRatio(s.OriginalBytes, s.CompressedBytes)
}

// StartStatsConsumer reads compression events until ctx is cancelled and
// logs the running totals after each one.
func StartStatsConsumer(ctx context.Context, brokers []string, topic, groupID string) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})
	defer reader.Close()

	logrus.WithFields(logrus.Fields{"brokers": brokers, "topic": topic}).Info("stats consumer started")

	totals := NewStatsTotals()
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			logrus.WithError(err).Error("error reading message from kafka")
			continue
		}

		var ev entity.CompressionEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			logrus.WithError(err).WithField("offset", msg.Offset).Warn("failed to parse compression event")
			continue
		}

		totals.Add(ev)
		logrus.WithFields(logrus.Fields{
			"request_id":       ev.RequestID,
			"partition":        msg.Partition,
			"offset":           msg.Offset,
			"requests":         totals.Requests,
			"files":            totals.Files,
			"failures":         totals.Failures,
			"total_ratio":      totals.Ratio(),
			"original_bytes":   totals.OriginalBytes,
			"compressed_bytes": totals.CompressedBytes,
		}).Info("compression stats")
	}
}
