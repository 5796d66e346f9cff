package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSClient is an in-memory queue implementing aws.SQSClient.
type SQSClient struct {
	mu       sync.Mutex
	messages []events.SQSMessage
	sent     int
	attempts int
	fail     map[int]bool
}

// NewSQSClient creates an empty queue.
func NewSQSClient() *SQSClient {
	return &SQSClient{}
}

// FailSends makes the given send attempts fail, counting from 1.
func (m *SQSClient) FailSends(attempts ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail == nil {
		m.fail = make(map[int]bool)
	}
	for _, a := range attempts {
		m.fail[a] = true
	}
}

// SendMessage enqueues the body.
func (m *SQSClient) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts++
	if m.fail[m.attempts] {
		return nil, errors.New("mock SQS: service unavailable")
	}

	m.sent++
	id := fmt.Sprintf("msg-%04d", m.sent)
	m.messages = append(m.messages, events.SQSMessage{
		MessageId: id,
		Body:      aws.ToString(params.MessageBody),
	})
	return &sqs.SendMessageOutput{MessageId: aws.String(id)}, nil
}

// Drain removes every queued message and returns them as SQS events of at
// most size records each, in send order.
func (m *SQSClient) Drain(size int) []events.SQSEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var batches []events.SQSEvent
	for start := 0; start < len(m.messages); start += size {
		end := min(start+size, len(m.messages))
		batches = append(batches, events.SQSEvent{Records: append([]events.SQSMessage(nil), m.messages[start:end]...)})
	}
	m.messages = nil
	return batches
}

// SNSClient records published messages, implementing aws.SNSClient.
type SNSClient struct {
	mu        sync.Mutex
	Published []*sns.PublishInput
}

// NewSNSClient creates an SNSClient.
func NewSNSClient() *SNSClient {
	return &SNSClient{}
}

// Publish records the input.
func (m *SNSClient) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, params)
	return &sns.PublishOutput{MessageId: aws.String(fmt.Sprintf("sns-%d", len(m.Published)))}, nil
}

// Messages returns the published message bodies keyed by their category
// attribute.
func (m *SNSClient) Messages() map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string][]string)
	for _, p := range m.Published {
		category := ""
		if attr, ok := p.MessageAttributes["category"]; ok {
			category = aws.ToString(attr.StringValue)
		}
		out[category] = append(out[category], aws.ToString(p.Message))
	}
	return out
}
