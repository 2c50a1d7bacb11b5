package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the operator token shape. The operator id is the standard
// subject; jti travels into audit events with the operator's actions.
type Claims struct {
	jwt.RegisteredClaims

	Role string `json:"role"`
}

func (c Claims) Operator() Operator {
	return Operator{ID: c.Subject, Role: c.Role, TokenID: c.ID}
}
