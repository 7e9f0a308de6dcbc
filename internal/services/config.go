package services

import (
	"time"
)

const DefaultProfileStoryTitle = "初回プロフィール登録ストーリー"

// EngineConfig carries the settings the engines share.
type EngineConfig struct {
	ProfileStoryTitle string
	// FollowUpDays is how many days after a delivery the next node is due.
	FollowUpDays int
	Now          func() time.Time
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.ProfileStoryTitle == "" {
		c.ProfileStoryTitle = DefaultProfileStoryTitle
	}
	if c.FollowUpDays <= 0 {
		c.FollowUpDays = 4
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// nextDue is midnight UTC FollowUpDays after now.
func (c EngineConfig) nextDue(now time.Time) time.Time {
	d := now.UTC().AddDate(0, 0, c.FollowUpDays)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}
