// Package kafka provides topic bootstrap, a broker readiness probe and the job
// message format shared by the API and the worker
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

// PublishStrategy - ретрай отправки задачи в очередь
var PublishStrategy = retry.Strategy{
	Attempts: 5,
	Delay:    3 * time.Second,
	Backoff:  1.5,
}

// ConsumeStrategy - ретрай чтения из очереди
var ConsumeStrategy = retry.Strategy{
	Attempts: 3,
	Delay:    1 * time.Second,
	Backoff:  2,
}

// JobMessage is the value published for every queued job. The key is the job UID.
type JobMessage struct {
	UID     string     `json:"uid"`
	Mode    model.Mode `json:"mode,omitempty"`
	Revived bool       `json:"revived,omitempty"`
}

func (m JobMessage) Encode() (key, value []byte, err error) {
	if err := uuid.Validate(m.UID); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", model.ErrIncorrectID, err)
	}
	value, err = json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	return []byte(m.UID), value, nil
}

// DecodeJobMessage reads the job reference out of a queue message. Messages with an
// empty value (key only) are accepted too.
func DecodeJobMessage(msg kafkago.Message) (JobMessage, error) {
	var m JobMessage
	if len(msg.Value) > 0 {
		if err := json.Unmarshal(msg.Value, &m); err != nil {
			return JobMessage{}, fmt.Errorf("malformed job message: %w", err)
		}
	}
	if m.UID == "" {
		m.UID = string(msg.Key)
	}
	if err := uuid.Validate(m.UID); err != nil {
		return JobMessage{}, fmt.Errorf("%w: %q", model.ErrIncorrectID, m.UID)
	}
	return m, nil
}

// InitKafkaTopics creates the topics, retrying until the broker accepts the request or ctx ends.
func InitKafkaTopics(ctx context.Context, brokerAddr string, delay time.Duration, topics ...string) error {
	client := &kafkago.Client{
		Addr:    kafkago.TCP(brokerAddr),
		Timeout: 10 * time.Second,
	}

	req := kafkago.CreateTopicsRequest{
		Topics: make([]kafkago.TopicConfig, 0, len(topics)),
	}

	for _, t := range topics {
		topic := kafkago.TopicConfig{
			Topic:             t,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
		req.Topics = append(req.Topics, topic)
	}

	for {
		resp, err := client.CreateTopics(ctx, &req)
		if err == nil && topicsReady(resp) {
			zlog.Logger.Info().Strs("topics", topics).Msg("All topics are ready")
			return nil
		}
		if err != nil {
			zlog.Logger.Warn().Err(err).Dur("retry_in", delay).Msg("Failed to run topics creation request")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func topicsReady(resp *kafkago.CreateTopicsResponse) bool {
	ok := true
	for k, v := range resp.Errors {
		if v == nil || errors.Is(v, kafkago.TopicAlreadyExists) {
			continue
		}
		zlog.Logger.Warn().Err(v).Str("topic", k).Msg("Topic creation error")
		ok = false
	}
	return ok
}

// WaitKafkaReady blocks until the broker accepts a TCP connection or ctx ends.
func WaitKafkaReady(ctx context.Context, brokerAddr string, delay time.Duration) error {
	var dialer kafkago.Dialer
	for {
		conn, err := dialer.DialContext(ctx, "tcp", brokerAddr)
		if err == nil {
			if errConn := conn.Close(); errConn != nil {
				zlog.Logger.Warn().Err(errConn).Msg("Failed to close connection after testing Kafka readiness")
			}
			zlog.Logger.Info().Str("broker", brokerAddr).Msg("Kafka is ready!")
			return nil
		}
		zlog.Logger.Info().Dur("retry_in", delay).Msg("Kafka not ready, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
