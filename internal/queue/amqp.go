package queue

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

const taskQueueName = "campaign_tasks"

// AMQPQueue distributes tasks to worker processes over RabbitMQ. The queue
// is durable and consumed with manual acks; a failed task is requeued via
// the x-retry-count header up to three times.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPQueue(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	_, err = ch.QueueDeclare(
		taskQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPQueue{conn: conn, ch: ch}, nil
}

func (q *AMQPQueue) Enqueue(ctx context.Context, task Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"",
		taskQueueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (q *AMQPQueue) Consume(ctx context.Context, handler Handler) error {
	msgs, err := q.ch.Consume(
		taskQueueName,
		"",
		false, // autoAck off for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return amqp.ErrClosed
			}
			var task Task
			if err := json.Unmarshal(d.Body, &task); err != nil {
				log.Error().Err(err).Msg("invalid task payload, dropping")
				d.Ack(false)
				continue
			}

			if err := handler(ctx, task); err != nil {
				log.Warn().Err(err).
					Str("task", task.Name).
					Int("campaign_id", task.CampaignID).
					Msg("task failed")

				var retryCount int32
				if v, ok := d.Headers["x-retry-count"].(int32); ok {
					retryCount = v
				}
				if retryCount < 3 {
					d.Nack(false, true) // requeue
					continue
				}
			}
			d.Ack(false)
		}
	}
}

func (q *AMQPQueue) Close() error {
	q.ch.Close()
	return q.conn.Close()
}

var _ TaskQueue = (*AMQPQueue)(nil)
