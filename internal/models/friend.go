package models

import (
	"time"
)

// Friend is a directed follow edge: UserID follows FriendID.
type Friend struct {
	ID        uint  `gorm:"primaryKey"`
	UserID    int64 `gorm:"not null;uniqueIndex:idx_friend_pair;index"`
	FriendID  int64 `gorm:"not null;uniqueIndex:idx_friend_pair;index"`
	CreatedAt time.Time
}
