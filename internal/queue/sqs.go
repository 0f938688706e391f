// Package queue ships usage records between instances through SQS so a single
// worker can persist them.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/felipepmaragno/agentrouter/internal/domain"
	"go.uber.org/zap"
)

// Message is a received usage record plus the handle needed to acknowledge it.
type Message struct {
	Record        domain.UsageRecord
	ReceiptHandle string
}

type Queue interface {
	Publish(ctx context.Context, record domain.UsageRecord) error
	Receive(ctx context.Context, maxMessages int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// SQSAPI is the subset of the SQS client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type SQSQueue struct {
	client   SQSAPI
	queueURL string
	logger   *zap.Logger
}

func NewSQSQueue(ctx context.Context, region, queueURL string, logger *zap.Logger) (*SQSQueue, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSQSQueueWithClient(sqs.NewFromConfig(cfg), queueURL, logger), nil
}

func NewSQSQueueWithClient(client SQSAPI, queueURL string, logger *zap.Logger) *SQSQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQSQueue{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Record lets the queue act as a usage sink.
func (q *SQSQueue) Record(ctx context.Context, record domain.UsageRecord) error {
	return q.Publish(ctx, record)
}

func (q *SQSQueue) Publish(ctx context.Context, record domain.UsageRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal usage record: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"ModelUsed": {
				DataType:    aws.String("String"),
				StringValue: aws.String(record.ModelUsed),
			},
			"TaskID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(record.TaskID),
			},
			"Cost": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.FormatFloat(record.Cost, 'f', -1, 64)),
			},
		},
	}

	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (q *SQSQueue) Receive(ctx context.Context, maxMessages int) ([]Message, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(q.queueURL),
		MaxNumberOfMessages:   int32(maxMessages),
		WaitTimeSeconds:       20,
		MessageAttributeNames: []string{"All"},
	}

	result, err := q.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("receive messages: %w", err)
	}

	messages := make([]Message, 0, len(result.Messages))
	for _, msg := range result.Messages {
		var rec domain.UsageRecord
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &rec); err != nil {
			q.logger.Warn("failed to unmarshal usage message", zap.Error(err))
			continue
		}
		messages = append(messages, Message{Record: rec, ReceiptHandle: aws.ToString(msg.ReceiptHandle)})
	}

	return messages, nil
}

func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	input := &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	}

	if _, err := q.client.DeleteMessage(ctx, input); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// InMemoryQueue is a process-local Queue for tests and single-node runs.
type InMemoryQueue struct {
	mu       sync.Mutex
	pending  []domain.UsageRecord
	inflight map[string]domain.UsageRecord
	seq      int
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		inflight: make(map[string]domain.UsageRecord),
	}
}

func (q *InMemoryQueue) Record(ctx context.Context, record domain.UsageRecord) error {
	return q.Publish(ctx, record)
}

func (q *InMemoryQueue) Publish(ctx context.Context, record domain.UsageRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, record)
	return nil
}

func (q *InMemoryQueue) Receive(ctx context.Context, maxMessages int) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := min(maxMessages, len(q.pending))
	messages := make([]Message, count)
	for i, rec := range q.pending[:count] {
		q.seq++
		handle := strconv.Itoa(q.seq)
		q.inflight[handle] = rec
		messages[i] = Message{Record: rec, ReceiptHandle: handle}
	}
	q.pending = q.pending[count:]

	return messages, nil
}

func (q *InMemoryQueue) Delete(ctx context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, receiptHandle)
	return nil
}

// Len reports pending plus unacknowledged messages.
func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) + len(q.inflight)
}
