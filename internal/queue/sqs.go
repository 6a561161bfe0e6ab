package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSQueue implements Queue on an SQS queue. The dead-letter sink is
// the queue's redrive policy, configured out of band.
type SQSQueue struct {
	client   *sqs.Client
	queueURL string
}

// NewSQSQueue creates a queue accessor for queueURL.
func NewSQSQueue(cfg aws.Config, queueURL string) *SQSQueue {
	return &SQSQueue{client: sqs.NewFromConfig(cfg), queueURL: queueURL}
}

// Send implements Queue. On FIFO queues dedupKey becomes the
// deduplication ID; standard queues ignore it.
func (q *SQSQueue) Send(ctx context.Context, body string, dedupKey string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(body),
	}
	if dedupKey != "" && isFIFO(q.queueURL) {
		input.MessageDeduplicationId = aws.String(dedupKey)
		input.MessageGroupId = aws.String("classification")
	}
	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

func isFIFO(queueURL string) bool {
	return len(queueURL) > 5 && queueURL[len(queueURL)-5:] == ".fifo"
}

// Receive implements Queue. SQS caps a single receive at 10 messages;
// callers wanting larger batches assemble them in chunks.
func (q *SQSQueue) Receive(ctx context.Context, max int, visibility time.Duration) ([]Message, error) {
	if max > 10 {
		max = 10
	}
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(q.queueURL),
		MaxNumberOfMessages:   int32(max),
		VisibilityTimeout:     int32(visibility.Seconds()),
		WaitTimeSeconds:       5,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("receiving messages: %w", err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		count, _ := strconv.Atoi(m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
		msgs = append(msgs, Message{
			ID:            aws.ToString(m.MessageId),
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			ReceiveCount:  count,
		})
	}
	return msgs, nil
}

// Ack implements Queue.
func (q *SQSQueue) Ack(ctx context.Context, msg Message) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(msg.ReceiptHandle),
	})
	if err != nil {
		return fmt.Errorf("acking message %s: %w", msg.ID, err)
	}
	return nil
}

// Nack implements Queue by shrinking the visibility timeout so the
// message reappears after delay.
func (q *SQSQueue) Nack(ctx context.Context, msg Message, delay time.Duration) error {
	_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.queueURL),
		ReceiptHandle:     aws.String(msg.ReceiptHandle),
		VisibilityTimeout: int32(delay.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("nacking message %s: %w", msg.ID, err)
	}
	return nil
}

// Depth implements Queue via queue attributes.
func (q *SQSQueue) Depth(ctx context.Context) (int, error) {
	out, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(q.queueURL),
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeNameApproximateNumberOfMessages,
			types.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("getting queue attributes: %w", err)
	}

	visible, _ := strconv.Atoi(out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)])
	inFlight, _ := strconv.Atoi(out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessagesNotVisible)])
	return visible + inFlight, nil
}
