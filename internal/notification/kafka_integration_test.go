//go:build integration

package notification_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"loankyc/internal/notification"
	"loankyc/pkg/testutil/containers"
)

type KafkaDispatcherSuite struct {
	suite.Suite
	kafka *containers.RedpandaContainer
}

func TestKafkaDispatcherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaDispatcherSuite))
}

func (s *KafkaDispatcherSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetRedpanda(s.T())
}

func (s *KafkaDispatcherSuite) TestDispatchIsConsumable() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	topic := "kyc-events-" + uuid.NewString()[:8]

	d, err := notification.NewKafkaDispatcher([]string{s.kafka.Broker}, topic)
	s.Require().NoError(err)
	defer d.Close()
	s.Require().NoError(d.EnsureTopic(ctx, 1, 1))
	s.Require().NoError(d.EnsureTopic(ctx, 1, 1), "second call is a no-op")

	ev := notification.Event{
		ID:         uuid.New(),
		Subject:    notification.SubjectKyc,
		ClientID:   uuid.NewString(),
		Action:     "approve",
		FromStatus: "PENDING_REVIEW",
		ToStatus:   "VERIFIED",
		OccurredAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	s.Require().NoError(d.Dispatch(ctx, ev))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.kafka.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal(ev.ClientID, string(records[0].Key))

	var got notification.Event
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal(ev.ID, got.ID)
	s.Equal("VERIFIED", got.ToStatus)
}
