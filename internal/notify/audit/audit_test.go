package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"hiring-notifications/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockIndexer struct {
	mock.Mock
}

func (m *MockIndexer) IndexDocument(ctx context.Context, index, id string, body []byte) error {
	args := m.Called(ctx, index, id, body)
	return args.Error(0)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

func outcome() models.Notification {
	return models.Notification{
		ID:          "n-1",
		ApplicantID: "1",
		OrgID:       "org-1",
		Trigger:     "approved",
		Outcome:     models.OutcomeFailed,
		Reason:      models.ReasonTransportFailed,
		Error:       "SMTP timeout",
		At:          time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestElasticsearchRecorder(t *testing.T) {
	idx := new(MockIndexer)
	idx.On("IndexDocument", mock.Anything, "notification-outcomes", "n-1", mock.MatchedBy(func(body []byte) bool {
		var n models.Notification
		return json.Unmarshal(body, &n) == nil && n.Reason == models.ReasonTransportFailed
	})).Return(nil)

	err := NewElasticsearchRecorder(idx, "notification-outcomes").Record(context.Background(), outcome())
	require.NoError(t, err)
	idx.AssertExpectations(t)
}

func TestSNSRecorder(t *testing.T) {
	var captured *sns.PublishInput
	client := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			captured = params
			return &sns.PublishOutput{MessageId: aws.String("sns-1")}, nil
		},
	}

	err := NewSNSRecorder(client, "arn:aws:sns:eu-west-1:1:outcomes").Record(context.Background(), outcome())
	require.NoError(t, err)

	assert.Equal(t, "arn:aws:sns:eu-west-1:1:outcomes", aws.ToString(captured.TopicArn))
	assert.Equal(t, "failed", aws.ToString(captured.MessageAttributes["outcome"].StringValue))
	assert.Equal(t, "transport_failed", aws.ToString(captured.MessageAttributes["reason"].StringValue))
	assert.Contains(t, aws.ToString(captured.Message), `"applicantId":"1"`)
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := new(MockIndexer)
	ok.On("IndexDocument", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	failing := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, errors.New("throttled")
		},
	}

	m := Multi{NewElasticsearchRecorder(ok, "i"), NewSNSRecorder(failing, "arn"), Nop{}}
	err := m.Record(context.Background(), outcome())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
	ok.AssertNumberOfCalls(t, "IndexDocument", 1)

	assert.NoError(t, Multi{}.Record(context.Background(), outcome()))
}
