// Package models defines the database models for the inscription contest.
package models

import "time"

// ProposalStatus is the lifecycle state of a contest entry.
type ProposalStatus string

const (
	StatusActive     ProposalStatus = "active"
	StatusLeader     ProposalStatus = "leader"
	StatusInscribing ProposalStatus = "inscribing"
	StatusInscribed  ProposalStatus = "inscribed"
	StatusRejected   ProposalStatus = "rejected"
	StatusExpired    ProposalStatus = "expired"
)

// Terminal reports whether a proposal in this status can never transition again.
func (s ProposalStatus) Terminal() bool {
	switch s {
	case StatusInscribed, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Proposal represents a contest entry competing for inscription.
// At most one proposal system-wide may hold status leader or inscribing.
type Proposal struct {
	ID          uint   `gorm:"primaryKey"`
	Ticker      string `gorm:"size:32;uniqueIndex;not null"`
	Name        string `gorm:"size:128"`
	Description string `gorm:"size:512"`
	// Content is the payload inscribed on-chain if the proposal wins.
	Content string `gorm:"size:4096"`

	VotesUp    int64 `gorm:"not null;default:0"`
	VotesDown  int64 `gorm:"not null;default:0"`
	TotalVotes int64 `gorm:"not null;default:0;index"`

	Status ProposalStatus `gorm:"size:16;not null;default:active;index"`

	// FirstTimeAsLeader is set once per leadership span and cleared only
	// by a competition reset.
	FirstTimeAsLeader *time.Time
	// LeaderStartBlock is the height at which the current leadership began.
	LeaderStartBlock int64
	// LeaderboardMinBlocks is the number of consecutive blocks the proposal
	// must hold rank #1 to win. Fixed per contest run at creation time.
	LeaderboardMinBlocks int64
	// ExpirationBlock is the deadline height for the current leadership
	// attempt.
	ExpirationBlock int64

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// BlocksAsLeader returns how many blocks the proposal has survived as
// leader at the given height. Zero in the promotion block itself.
func (p *Proposal) BlocksAsLeader(height int64) int64 {
	if p.LeaderStartBlock == 0 || height < p.LeaderStartBlock {
		return 0
	}
	return height - p.LeaderStartBlock
}
