package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the access token payload issued by the portal's auth service.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	jwt.RegisteredClaims
}
