package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
)

// Dispatcher pushes commit events to Kafka through a bounded local queue and
// a pool of workers with bounded retries. Submit only enqueues; a slow or
// briefly unavailable broker never blocks the commit path, and a saturated
// queue degrades by timing the enqueue out.
type Dispatcher struct {
	producer sarama.SyncProducer
	topic    string

	queue chan DocOpEvent

	workers     int
	maxRetry    int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

type DispatcherOptions struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func NewDispatcher(producer sarama.SyncProducer, topic string, opt DispatcherOptions) *Dispatcher {
	if opt.QueueSize <= 0 {
		opt.QueueSize = 10_000
	}
	if opt.Workers <= 0 {
		opt.Workers = 4
	}
	if opt.BaseBackoff <= 0 {
		opt.BaseBackoff = 50 * time.Millisecond
	}
	if opt.MaxBackoff <= 0 {
		opt.MaxBackoff = time.Second
	}
	d := &Dispatcher{
		producer:    producer,
		topic:       topic,
		queue:       make(chan DocOpEvent, opt.QueueSize),
		workers:     opt.Workers,
		maxRetry:    opt.MaxRetry,
		baseBackoff: opt.BaseBackoff,
		maxBackoff:  opt.MaxBackoff,
	}
	for i := 0; i < d.workers; i++ {
		go d.workerLoop(i)
	}
	return d
}

// Enqueue queues an event for delivery, waiting until ctx expires if the
// queue is full. Fan-out is not required to be lossless.
func (d *Dispatcher) Enqueue(ctx context.Context, evt DocOpEvent) error {
	select {
	case d.queue <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) workerLoop(workerID int) {
	for evt := range d.queue {
		d.sendWithRetry(workerID, evt)
	}
}

func (d *Dispatcher) sendWithRetry(workerID int, evt DocOpEvent) {
	for attempt := 0; ; attempt++ {
		err := d.sendOnce(evt)
		if err == nil {
			return
		}
		if attempt == d.maxRetry {
			log.Printf("collab: kafka send failed, drop event doc=%s op=%s rev=%d worker=%d err=%v",
				evt.DocID, evt.OperationID, evt.Revision, workerID, err)
			return
		}
		backoff := d.baseBackoff * time.Duration(1<<attempt)
		if backoff > d.maxBackoff {
			backoff = d.maxBackoff
		}
		time.Sleep(backoff)
	}
}

func (d *Dispatcher) sendOnce(evt DocOpEvent) error {
	if d.producer == nil || d.topic == "" {
		return nil
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(evt.DocID),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = d.producer.SendMessage(msg)
	return err
}

// RunConsumer joins the consumer group and feeds every commit event from
// other instances to handler. It blocks until ctx is cancelled.
func RunConsumer(ctx context.Context, brokers []string, group, topic, instanceID string, handler func(DocOpEvent)) error {
	cfg := sarama.NewConfig()
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cg, err := sarama.NewConsumerGroup(brokers, group, cfg)
	if err != nil {
		return fmt.Errorf("kafka consumer group: %w", err)
	}
	defer cg.Close()
	h := &consumerHandler{instanceID: instanceID, handler: handler}
	for {
		if err := cg.Consume(ctx, []string{topic}, h); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

type consumerHandler struct {
	instanceID string
	handler    func(DocOpEvent)
}

func (h *consumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var evt DocOpEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			log.Printf("collab: bad kafka event at %s/%d/%d: %v", msg.Topic, msg.Partition, msg.Offset, err)
			sess.MarkMessage(msg, "")
			continue
		}
		if evt.Origin != h.instanceID {
			h.handler(evt)
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
