package jwttoken

import (
	"dinemate/internal/platform/middleware"
	id "dinemate/pkg/domain"
	dErrors "dinemate/pkg/domain-errors"
)

// JWTServiceAdapter bridges the JWT service to the middleware's validator
// interface, translating string claims into typed IDs.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	return &middleware.JWTClaims{UserID: userID}, nil
}
