package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/lineflow-backend/internal/clients/line"
	"github.com/yungbote/lineflow-backend/internal/pkg/linemsg"
)

// Notifier delivers messages to customers.
type Notifier interface {
	Reply(ctx context.Context, replyToken string, messages []linemsg.Message) error
	Push(ctx context.Context, to string, messages []linemsg.Message) error
}

type ProfileSource interface {
	GetProfile(ctx context.Context, userID string) (*line.Profile, error)
}

type FollowerSource interface {
	FollowerIDs(ctx context.Context, start string) (*line.FollowerPage, error)
}

// Locker serializes work on one key across goroutines and replicas.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Deduper claims an event id once within ttl.
type Deduper interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// StoryAdvancer moves a customer's flow past a completed survey.
type StoryAdvancer interface {
	AdvanceAfterSurvey(ctx context.Context, surveyID, customerID uuid.UUID) error
}
