package models

import "time"

// ProgressCheckpoint is the singleton record of block-processing progress.
// It is the sole source of resumption truth: the monitor never reconstructs
// progress by rescanning chain history.
type ProgressCheckpoint struct {
	ID                 uint   `gorm:"primaryKey"`
	LastProcessedBlock int64  `gorm:"not null;default:0"`
	LastProcessedHash  string `gorm:"size:128"`
	// BlocksWithoutLaunch counts consecutive processed blocks that emitted
	// no inscription decision. Reset to zero on every launch.
	BlocksWithoutLaunch int64 `gorm:"not null;default:0"`
	LastLaunchBlock     int64 `gorm:"not null;default:0"`
	LastChecked         time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
