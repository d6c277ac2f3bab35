// Package events publishes promocode domain events to AWS SNS.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-promo-reco/internal/domain"
)

// ErrNoTopic is returned when a publisher is built without a topic ARN.
var ErrNoTopic = errors.New("events: empty topic arn")

// SNSAPI is the subset of the SNS client used for publishing.
type SNSAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher sends promocode events to a single topic.
type SNSPublisher struct {
	client   SNSAPI
	topicARN string
}

// NewSNSPublisher wraps an existing client.
func NewSNSPublisher(client SNSAPI, topicARN string) (*SNSPublisher, error) {
	if topicARN == "" {
		return nil, ErrNoTopic
	}
	return &SNSPublisher{client: client, topicARN: topicARN}, nil
}

// AWSOptions configures the SNS client. Endpoint, when set, points the
// client at a local emulator and uses static dummy credentials.
type AWSOptions struct {
	Region   string
	Endpoint string
}

// NewSNSPublisherFromEnv loads the default AWS configuration chain and builds
// a publisher for topicARN.
func NewSNSPublisherFromEnv(ctx context.Context, topicARN string, opts AWSOptions) (*SNSPublisher, error) {
	if topicARN == "" {
		return nil, ErrNoTopic
	}
	var cfgOpts []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, awscfg.WithRegion(opts.Region))
	}
	if opts.Endpoint != "" {
		cfgOpts = append(cfgOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test", "test", ""),
		))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := sns.NewFromConfig(cfg, func(o *sns.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return NewSNSPublisher(client, topicARN)
}

// PublishPromocodeApplied sends ev as a JSON message with an event_type
// message attribute.
func (p *SNSPublisher) PublishPromocodeApplied(ctx context.Context, ev domain.PromocodeAppliedEvent) error {
	if ev.EventType == "" {
		ev.EventType = domain.EventPromocodeApplied
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(ev.EventType),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish to %s: %w", p.topicARN, err)
	}
	zerolog.Ctx(ctx).Debug().
		Str("topic_arn", p.topicARN).
		Str("message_id", aws.ToString(out.MessageId)).
		Str("promo_code", ev.PromoCode).
		Msg("event published")
	return nil
}

// LogPublisher writes events to the request logger instead of a broker. It
// is used when no topic is configured.
type LogPublisher struct{}

// PublishPromocodeApplied logs ev at info level.
func (LogPublisher) PublishPromocodeApplied(ctx context.Context, ev domain.PromocodeAppliedEvent) error {
	zerolog.Ctx(ctx).Info().
		Str("event_type", domain.EventPromocodeApplied).
		Str("promo_code", ev.PromoCode).
		Str("user_id", ev.UserID).
		Float64("discount_applied", ev.DiscountApplied).
		Int("usage_count", ev.UsageCount).
		Msg("promocode applied")
	return nil
}
