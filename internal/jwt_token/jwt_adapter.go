package jwttoken

import (
	id "attesta/pkg/domain"
	dErrors "attesta/pkg/domain-errors"
	authmw "attesta/pkg/platform/middleware/auth"
)

// JWTServiceAdapter bridges the token service to the auth middleware's
// validator contract, parsing the string claims into domain types so the
// middleware never handles raw claim values.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.Claims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	reviewerID, err := id.ParseReviewerID(claims.ReviewerID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid reviewer claim")
	}
	role, err := id.ParseRole(claims.Role)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid role claim")
	}

	return &authmw.Claims{
		ReviewerID: reviewerID,
		Role:       role,
		JTI:        claims.ID,
	}, nil
}
