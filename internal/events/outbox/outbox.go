// Package outbox implements the transactional outbox for registry events.
// Events are appended in the same unit of work as the state change that
// produced them; a Worker relays pending entries to a Publisher afterwards.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	contract "visitorbook/contracts/visitorbook"
	"visitorbook/internal/visitorbook/models"
)

// EventTypeVisit is the event type of Visit entries.
const EventTypeVisit = "visit"

// Entry is one outbox row.
type Entry struct {
	ID          uuid.UUID
	EventType   string
	AggregateID string
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// Store persists outbox entries.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	Pending(ctx context.Context, limit int) ([]Entry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// VisitPayload is the JSON published for a Visit event. Topics and Data carry
// the EVM log encoding so consumers can decode it with the contract ABI.
type VisitPayload struct {
	ID        string    `json:"id"`
	Event     string    `json:"event"`
	Contract  string    `json:"contract"`
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Topics    []string  `json:"topics"`
	Data      string    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// NewVisitEntry builds the outbox entry for a Visit emitted by contractAddr.
func NewVisitEntry(contractAddr common.Address, event models.VisitEvent, now time.Time) (Entry, error) {
	log, err := contract.EncodeVisitLog(contractAddr, event.Sender, event.Message)
	if err != nil {
		return Entry{}, fmt.Errorf("encode visit log: %w", err)
	}
	topics := make([]string, len(log.Topics))
	for i, topic := range log.Topics {
		topics[i] = topic.Hex()
	}

	id := uuid.New()
	payload, err := json.Marshal(VisitPayload{
		ID:        id.String(),
		Event:     contract.EventVisit,
		Contract:  contractAddr.Hex(),
		Sender:    event.Sender.Hex(),
		Message:   event.Message,
		Topics:    topics,
		Data:      hexutil.Encode(log.Data),
		Timestamp: now.UTC(),
	})
	if err != nil {
		return Entry{}, fmt.Errorf("marshal visit payload: %w", err)
	}
	return Entry{
		ID:          id,
		EventType:   EventTypeVisit,
		AggregateID: event.Sender.Hex(),
		Payload:     payload,
		CreatedAt:   now,
	}, nil
}
