// Package notify announces completed imports on the catalog SNS topic.
// Subscribers filter on the "category" message attribute.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/gurre/ddb-catalog/aws"
	"github.com/gurre/ddb-catalog/catalog"
)

// Notifier publishes tier totals.
type Notifier interface {
	PublishTierTotals(ctx context.Context, totals catalog.TierTotals) error
}

// Publisher implements Notifier on SNS.
type Publisher struct {
	client   aws.SNSClient
	topicARN string
}

// NewPublisher creates a Publisher for topicARN.
func NewPublisher(client aws.SNSClient, topicARN string) *Publisher {
	return &Publisher{client: client, topicARN: topicARN}
}

// Message is one tier announcement.
type Message struct {
	Category catalog.Tier
	Content  string
}

// Messages returns the premium and discount announcements for totals.
func Messages(totals catalog.TierTotals) []Message {
	return []Message{
		{Category: catalog.TierPremium, Content: fmt.Sprintf("Successfully created %d Premium Products!", totals.Premium)},
		{Category: catalog.TierDiscount, Content: fmt.Sprintf("Successfully created %d Discount Products!", totals.Discount)},
	}
}

// PublishTierTotals publishes both announcements concurrently. Both are
// attempted even if one fails; the errors are joined.
func (p *Publisher) PublishTierTotals(ctx context.Context, totals catalog.TierTotals) error {
	msgs := Messages(totals)
	errs := make([]error, len(msgs))

	var wg sync.WaitGroup
	for i, m := range msgs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = p.publish(ctx, m)
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (p *Publisher) publish(ctx context.Context, m Message) error {
	_, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: &p.topicARN,
		Message:  sdkaws.String(m.Content),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"category": {
				DataType:    sdkaws.String("String"),
				StringValue: sdkaws.String(string(m.Category)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s notification: %w", m.Category, err)
	}
	return nil
}
