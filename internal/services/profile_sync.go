package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/lineflow-backend/internal/data/repos"
	types "github.com/yungbote/lineflow-backend/internal/domain"
	"github.com/yungbote/lineflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/lineflow-backend/internal/pkg/linemsg"
	"github.com/yungbote/lineflow-backend/internal/pkg/pointers"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

// ProfileSync copies a completed profile survey onto the customer row.
type ProfileSync interface {
	Sync(ctx context.Context, surveyID, customerID uuid.UUID) error
}

type profileSync struct {
	log       *logger.Logger
	responses repos.ResponseRepo
	catalog   repos.CatalogRepo
	customers repos.CustomerRepo
}

func NewProfileSync(log *logger.Logger, responses repos.ResponseRepo, catalog repos.CatalogRepo, customers repos.CustomerRepo) ProfileSync {
	return &profileSync{
		log:       log.With("service", "ProfileSync"),
		responses: responses,
		catalog:   catalog,
		customers: customers,
	}
}

// Sync maps answers by question order: 1 grade, 2 major, 3 or 4 university,
// 6 prefecture, 7 push consent. A catalog pick at 3 wins over a stale
// free-text answer at 4.
func (s *profileSync) Sync(ctx context.Context, surveyID, customerID uuid.UUID) error {
	dbc := dbctx.New(ctx)
	answers, err := s.responses.ListAnswers(dbc, surveyID, customerID)
	if err != nil {
		return err
	}

	var upd types.ProfileUpdate
	universityFromCatalog := false
	for _, a := range answers {
		value := strings.TrimSpace(a.Value)
		switch a.OrderIndex {
		case 1:
			upd.GradeID = s.parseID(a, value)
		case 2:
			upd.MajorID = s.parseID(a, value)
		case 3:
			if value != "" && !linemsg.IsOther(value) {
				if id := s.parseID(a, value); id != nil {
					upd.UniversityID = id
					universityFromCatalog = true
				}
			}
		case 4:
			if universityFromCatalog || value == "" {
				continue
			}
			id, err := s.catalog.UpsertFreeTextUniversity(dbc, value)
			if err != nil {
				s.log.Warn("free-text university resolve failed", "customer_id", customerID, "error", err)
				continue
			}
			upd.UniversityID = &id
		case 6:
			upd.PrefectureID = s.parseID(a, value)
		case 7:
			if strings.EqualFold(value, "yes") {
				upd.OptIn = pointers.Bool(true)
				upd.IsBlocked = pointers.Bool(false)
			} else {
				upd.OptIn = pointers.Bool(false)
			}
		}
	}
	if upd.Empty() {
		return nil
	}
	if err := s.customers.UpdateProfile(dbc, customerID, upd); err != nil {
		return err
	}
	s.log.Info("profile synced from survey", "customer_id", customerID, "survey_id", surveyID)
	return nil
}

func (s *profileSync) parseID(a types.AnswerRecord, value string) *uuid.UUID {
	id, err := uuid.Parse(value)
	if err != nil {
		if a.OptionID != nil {
			return a.OptionID
		}
		s.log.Warn("answer is not a catalog id", "order", a.OrderIndex, "value", value)
		return nil
	}
	return &id
}
