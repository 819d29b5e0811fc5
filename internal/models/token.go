package models

import "github.com/golang-jwt/jwt/v5"

type TokenClaims struct {
	AccountID     int64  `json:"account_id"`
	AccountNumber string `json:"account_number"`
	jwt.RegisteredClaims
}
