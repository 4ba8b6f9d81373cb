package kafka

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// EnsureTopic creates opts.Topic on the cluster controller if the topic does not exist yet.
func EnsureTopic(ctx context.Context, opts Options, partitions, replicationFactor int) (bool, error) {
	if len(opts.Brokers) == 0 {
		return false, fmt.Errorf("kafka: no brokers configured")
	}
	dialer := &kafka.Dialer{}
	if opts.Username != "" {
		dialer.SASLMechanism = plain.Mechanism{
			Username: opts.Username,
			Password: opts.Password,
		}
	}

	conn, err := dialer.DialContext(ctx, "tcp", opts.Brokers[0])
	if err != nil {
		return false, fmt.Errorf("connect to broker: %w", err)
	}
	defer conn.Close()

	existing, err := conn.ReadPartitions(opts.Topic)
	if err == nil && len(existing) > 0 {
		return false, nil
	}

	controller, err := conn.Controller()
	if err != nil {
		return false, fmt.Errorf("find controller: %w", err)
	}
	ctrl, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return false, fmt.Errorf("connect to controller: %w", err)
	}
	defer ctrl.Close()

	err = ctrl.CreateTopics(kafka.TopicConfig{
		Topic:             opts.Topic,
		NumPartitions:     partitions,
		ReplicationFactor: replicationFactor,
	})
	if err != nil {
		return false, fmt.Errorf("create topic %s: %w", opts.Topic, err)
	}
	return true, nil
}
