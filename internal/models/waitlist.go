package models

import "time"

const WaitlistTableName = "waitlist_users"

// WaitlistEntry is one captured lead. Email is the identity key and the
// record is never updated after creation.
type WaitlistEntry struct {
	Email      string    `gorm:"primaryKey;size:254" dynamodbav:"email"`
	Source     string    `gorm:"size:64;not null;default:unknown" dynamodbav:"source"`
	Brand      string    `gorm:"size:64;not null" dynamodbav:"brand"`
	Subscribed bool      `gorm:"not null;default:true" dynamodbav:"subscribed"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime:false" dynamodbav:"createdAt"`
}

func (WaitlistEntry) TableName() string {
	return WaitlistTableName
}
