//go:build integration

package publisher_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"visitorbook/internal/events/outbox"
	"visitorbook/internal/events/publisher"
	"visitorbook/internal/visitorbook/models"
	"visitorbook/pkg/testutil/containers"
)

type KafkaSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
}

func TestKafkaSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSuite))
}

func (s *KafkaSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
}

func (s *KafkaSuite) TestPublishedVisitIsConsumable() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	const topic = "visitorbook.visits.test"

	pub, err := publisher.NewKafka(s.redpanda.Brokers, topic)
	s.Require().NoError(err)
	defer pub.Close()
	s.Require().NoError(pub.EnsureTopic(ctx, 1, 1))
	s.Require().NoError(pub.EnsureTopic(ctx, 1, 1), "existing topic is not an error")

	sender := common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	entry, err := outbox.NewVisitEntry(common.HexToAddress("0xC0"), models.VisitEvent{Sender: sender, Message: "hello"}, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(pub.Publish(ctx, entry))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())
	records := fetches.Records()
	s.Require().NotEmpty(records)

	rec := records[0]
	s.Equal(sender.Hex(), string(rec.Key))
	s.JSONEq(string(entry.Payload), string(rec.Value))
	headers := map[string]string{}
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	s.Equal(entry.ID.String(), headers["event_id"])
	s.Equal(outbox.EventTypeVisit, headers["event_type"])
}
