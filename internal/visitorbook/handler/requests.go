package handler

import (
	"github.com/holiman/uint256"

	"visitorbook/pkg/domain"
)

// SignRequest is the body of POST /v1/visits. Payment is the value attached
// to the call, in decimal minimal units; it is a string so the full 256-bit
// range survives JSON.
type SignRequest struct {
	Message string `json:"message"`
	Payment string `json:"payment"`

	payment *uint256.Int
}

func (r *SignRequest) Validate() error {
	if r.Payment == "" {
		r.payment = new(uint256.Int)
		return nil
	}
	amount, err := domain.ParseAmount(r.Payment)
	if err != nil {
		return err
	}
	r.payment = amount
	return nil
}

// MintRequest is the body of POST /v1/admin/accounts/{address}/mint.
type MintRequest struct {
	Amount string `json:"amount"`

	amount *uint256.Int
}

func (r *MintRequest) Validate() error {
	amount, err := domain.ParseAmount(r.Amount)
	if err != nil {
		return err
	}
	r.amount = amount
	return nil
}
