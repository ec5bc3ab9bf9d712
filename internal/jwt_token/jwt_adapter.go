package jwttoken

import (
	"github.com/ethereum/go-ethereum/common"
)

// JWTServiceAdapter exposes a JWTService as a middleware.CallerValidator.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateCaller(tokenString string) (common.Address, error) {
	return a.service.CallerFromToken(tokenString)
}
