package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/yungbote/lineflow-backend/internal/data/repos"
	types "github.com/yungbote/lineflow-backend/internal/domain"
	"github.com/yungbote/lineflow-backend/internal/observability"
	"github.com/yungbote/lineflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

type FollowerSyncResult struct {
	Fetched     int `json:"fetched"`
	Inserted    int `json:"inserted"`
	Reactivated int `json:"reactivated"`
	Blocked     int `json:"blocked"`
}

// FollowerSync reconciles customer rows with the channel's follower list.
type FollowerSync interface {
	Run(ctx context.Context) (FollowerSyncResult, error)
}

type followerSync struct {
	log       *logger.Logger
	followers FollowerSource
	profiles  ProfileSource
	customers repos.CustomerRepo
	metrics   *observability.Metrics
	now       func() time.Time
	// profileFetches bounds concurrent profile lookups for new followers.
	profileFetches int64
}

func NewFollowerSync(log *logger.Logger, followers FollowerSource, profiles ProfileSource, customers repos.CustomerRepo, metrics *observability.Metrics) FollowerSync {
	return &followerSync{
		log:            log.With("service", "FollowerSync"),
		followers:      followers,
		profiles:       profiles,
		customers:      customers,
		metrics:        metrics,
		now:            time.Now,
		profileFetches: 5,
	}
}

func (s *followerSync) Run(ctx context.Context) (FollowerSyncResult, error) {
	var res FollowerSyncResult
	ids, err := s.fetchAll(ctx)
	if err != nil {
		return res, err
	}
	res.Fetched = len(ids)
	dbc := dbctx.New(ctx)

	existing, err := s.customers.ListByLineUserIDs(dbc, ids)
	if err != nil {
		return res, fmt.Errorf("list customers: %w", err)
	}
	known := make(map[string]*types.Customer, len(existing))
	var reactivate []uuid.UUID
	for _, c := range existing {
		known[c.LineUserID] = c
		if c.IsBlocked {
			reactivate = append(reactivate, c.ID)
		}
	}

	var missing []string
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		rows := s.newCustomers(ctx, missing)
		created, err := s.customers.CreateMany(dbc, rows)
		if err != nil {
			return res, fmt.Errorf("insert followers: %w", err)
		}
		res.Inserted = len(created)
	}

	n, err := s.customers.Reactivate(dbc, reactivate)
	if err != nil {
		return res, fmt.Errorf("reactivate followers: %w", err)
	}
	res.Reactivated = int(n)

	// An empty follower list would block everyone; treat it as a fetch
	// problem rather than a mass unfollow.
	if len(ids) > 0 {
		n, err = s.customers.MarkBlockedExcept(dbc, ids, s.now())
		if err != nil {
			return res, fmt.Errorf("block unfollowed: %w", err)
		}
		res.Blocked = int(n)
	}

	s.metrics.ObserveFollowerSync(res.Inserted, res.Reactivated, res.Blocked)
	s.log.Info("follower sync finished",
		"fetched", res.Fetched,
		"inserted", res.Inserted,
		"reactivated", res.Reactivated,
		"blocked", res.Blocked,
	)
	return res, nil
}

func (s *followerSync) fetchAll(ctx context.Context) ([]string, error) {
	var ids []string
	seen := map[string]bool{}
	start := ""
	for {
		page, err := s.followers.FollowerIDs(ctx, start)
		if err != nil {
			return nil, fmt.Errorf("fetch followers: %w", err)
		}
		for _, id := range page.UserIDs {
			id = strings.TrimSpace(id)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
		if page.Next == "" {
			return ids, nil
		}
		start = page.Next
	}
}

// newCustomers builds rows for unknown followers, filling names from the
// profile API where it answers.
func (s *followerSync) newCustomers(ctx context.Context, lineUserIDs []string) []*types.Customer {
	rows := make([]*types.Customer, len(lineUserIDs))
	for i, id := range lineUserIDs {
		rows[i] = &types.Customer{LineUserID: id, OptIn: true}
	}
	if s.profiles == nil {
		return rows
	}

	var g errgroup.Group
	sem := semaphore.NewWeighted(s.profileFetches)
	for i := range rows {
		row := rows[i]
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			p, err := s.profiles.GetProfile(ctx, row.LineUserID)
			if err != nil || p == nil {
				s.log.Debug("follower profile unavailable", "line_user_id", row.LineUserID, "error", err)
				return nil
			}
			row.DisplayName = strings.TrimSpace(p.DisplayName)
			row.PictureURL = strings.TrimSpace(p.PictureURL)
			return nil
		})
	}
	_ = g.Wait()
	return rows
}
