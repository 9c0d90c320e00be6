package models

import "time"

// OrderStatus is the lifecycle state of an inscription order as tracked
// locally. The external marketplace has a richer vocabulary; see the
// market package for the mapping.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderFailed    OrderStatus = "failed"
)

// Terminal reports whether the order can never change again.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderFailed
}

// InscriptionOrder is the audit trail of one externally processed
// inscription request. One non-terminal order per proposal at a time,
// enforced by the order manager, not the store.
type InscriptionOrder struct {
	ID         uint `gorm:"primaryKey"`
	ProposalID uint `gorm:"not null;index"`

	// Block context that triggered the order.
	BlockHeight int64  `gorm:"not null;index"`
	BlockHash   string `gorm:"size:128"`

	ExternalID string      `gorm:"size:128;index"`
	Status     OrderStatus `gorm:"size:16;not null;default:pending;index"`
	// ExternalStatus mirrors the marketplace's last reported status verbatim.
	ExternalStatus string `gorm:"size:32"`

	PayAddress string `gorm:"size:128"`
	// Amount is the quoted order cost in satoshi.
	Amount int64

	InscriptionID  string `gorm:"size:128"`
	TxID           string `gorm:"size:128"`
	InscriptionURL string `gorm:"size:256"`
	FailReason     string `gorm:"size:256"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
