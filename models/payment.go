package models

import (
	"time"
)

// PaymentStatus represents the state of a payment as reported by the gateway
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// Payment represents a token purchase tracked against the external gateway.
// Amount is in minor units of Currency. TokensCredited is set exactly once,
// the first time the payment transitions to completed.
type Payment struct {
	ID             int64         `db:"id"`
	UserID         int64         `db:"user_id"`
	Amount         int64         `db:"amount"`
	Currency       string        `db:"currency"`
	Status         PaymentStatus `db:"status"`
	ExternalID     string        `db:"external_id"`
	TokensCredited int64         `db:"tokens_credited"`
	CreatedAt      time.Time     `db:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at"`
}
