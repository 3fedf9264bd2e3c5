// Package audit keeps a record of every dispatch outcome outside the process.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"hiring-notifications/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type Recorder interface {
	Record(ctx context.Context, n models.Notification) error
}

// Indexer is satisfied by *database.ElasticsearchClient.
type Indexer interface {
	IndexDocument(ctx context.Context, index, id string, body []byte) error
}

// ElasticsearchRecorder indexes each outcome under its notification id.
type ElasticsearchRecorder struct {
	indexer Indexer
	index   string
}

func NewElasticsearchRecorder(indexer Indexer, index string) *ElasticsearchRecorder {
	return &ElasticsearchRecorder{indexer: indexer, index: index}
}

func (r *ElasticsearchRecorder) Record(ctx context.Context, n models.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return r.indexer.IndexDocument(ctx, r.index, n.ID, body)
}

// SNSAPI is the part of *sns.Client the recorder uses.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSRecorder publishes each outcome to a topic. Outcome and reason are message
// attributes so subscribers can filter on them.
type SNSRecorder struct {
	client   SNSAPI
	topicARN string
}

func NewSNSRecorder(client SNSAPI, topicARN string) *SNSRecorder {
	return &SNSRecorder{client: client, topicARN: topicARN}
}

func (r *SNSRecorder) Record(ctx context.Context, n models.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	_, err = r.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(r.topicARN),
		Message:  aws.String(string(body)),
		Subject:  aws.String("notification " + n.Outcome),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"outcome": {DataType: aws.String("String"), StringValue: aws.String(n.Outcome)},
			"reason":  {DataType: aws.String("String"), StringValue: aws.String(n.Reason)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Multi records to every recorder and joins their errors.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, n models.Notification) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every outcome.
type Nop struct{}

func (Nop) Record(context.Context, models.Notification) error { return nil }
