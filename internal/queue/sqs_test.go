package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/felipepmaragno/agentrouter/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	sent     []*sqs.SendMessageInput
	deleted  []string
	messages []types.Message
	err      error
}

func (f *fakeSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{MessageId: aws.String("m1")}, nil
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.ReceiveMessageOutput{Messages: f.messages}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSQueue_Publish(t *testing.T) {
	client := &fakeSQS{}
	q := NewSQSQueueWithClient(client, "https://sqs.local/usage", nil)

	rec := domain.UsageRecord{ID: "r1", TaskID: "t1", ModelUsed: "B", Cost: 0.003}
	require.NoError(t, q.Record(context.Background(), rec))

	require.Len(t, client.sent, 1)
	in := client.sent[0]
	assert.Equal(t, "https://sqs.local/usage", aws.ToString(in.QueueUrl))
	assert.Equal(t, "B", aws.ToString(in.MessageAttributes["ModelUsed"].StringValue))
	assert.Equal(t, "0.003", aws.ToString(in.MessageAttributes["Cost"].StringValue))

	var got domain.UsageRecord
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &got))
	assert.Equal(t, "r1", got.ID)
}

func TestSQSQueue_ReceiveSkipsMalformed(t *testing.T) {
	body, err := json.Marshal(domain.UsageRecord{ID: "ok", ModelUsed: "A"})
	require.NoError(t, err)

	client := &fakeSQS{messages: []types.Message{
		{Body: aws.String(string(body)), ReceiptHandle: aws.String("h1")},
		{Body: aws.String("{not json"), ReceiptHandle: aws.String("h2")},
	}}
	q := NewSQSQueueWithClient(client, "url", nil)

	msgs, err := q.Receive(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "ok", msgs[0].Record.ID)
	assert.Equal(t, "h1", msgs[0].ReceiptHandle)

	require.NoError(t, q.Delete(context.Background(), "h1"))
	assert.Equal(t, []string{"h1"}, client.deleted)
}

func TestSQSQueue_Errors(t *testing.T) {
	boom := errors.New("throttled")
	q := NewSQSQueueWithClient(&fakeSQS{err: boom}, "url", nil)
	ctx := context.Background()

	assert.ErrorIs(t, q.Publish(ctx, domain.UsageRecord{}), boom)
	_, err := q.Receive(ctx, 1)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, q.Delete(ctx, "h"), boom)
}

func TestInMemoryQueue(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Publish(ctx, domain.UsageRecord{ID: id}))
	}

	msgs, err := q.Receive(ctx, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].Record.ID)
	assert.Equal(t, 3, q.Len())

	require.NoError(t, q.Delete(ctx, msgs[0].ReceiptHandle))
	assert.Equal(t, 2, q.Len())

	rest, err := q.Receive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "c", rest[0].Record.ID)
}
