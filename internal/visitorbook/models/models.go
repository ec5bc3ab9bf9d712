package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// DefaultFee is the registration fee set by Initialize, in minimal units.
const DefaultFee uint64 = 100

// NewDefaultFee returns DefaultFee as a fresh uint256.
func NewDefaultFee() *uint256.Int {
	return uint256.NewInt(DefaultFee)
}

// CallContext is what the host attaches to a state-changing call: who is
// calling and how much value they sent along with it.
type CallContext struct {
	Caller common.Address
	Value  *uint256.Int
}

// VisitEvent is emitted once per successful registration.
type VisitEvent struct {
	Sender  common.Address
	Message string
}

// Snapshot is the archived view of the registry at a point in time.
type Snapshot struct {
	Contract      common.Address   `json:"contract"`
	Fee           string           `json:"fee"`
	TotalVisitors uint64           `json:"total_visitors"`
	Visitors      []common.Address `json:"visitors"`
	TakenAt       time.Time        `json:"taken_at"`
}
