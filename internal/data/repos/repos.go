package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/lineflow-backend/internal/data/repos/catalog"
	"github.com/yungbote/lineflow-backend/internal/data/repos/customer"
	"github.com/yungbote/lineflow-backend/internal/data/repos/story"
	"github.com/yungbote/lineflow-backend/internal/data/repos/survey"
	"github.com/yungbote/lineflow-backend/internal/data/repos/webhook"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

type CustomerRepo = customer.CustomerRepo
type CatalogRepo = catalog.CatalogRepo

type StoryRepo = story.StoryRepo
type UserFlowRepo = story.UserFlowRepo

type SurveyRepo = survey.SurveyRepo
type SessionRepo = survey.SessionRepo
type ResponseRepo = survey.ResponseRepo

type ProcessedEventRepo = webhook.ProcessedEventRepo

func NewCustomerRepo(db *gorm.DB, log *logger.Logger) CustomerRepo {
	return customer.NewCustomerRepo(db, log)
}

func NewCatalogRepo(db *gorm.DB, log *logger.Logger) CatalogRepo {
	return catalog.NewCatalogRepo(db, log)
}

func NewStoryRepo(db *gorm.DB, log *logger.Logger) StoryRepo {
	return story.NewStoryRepo(db, log)
}

func NewUserFlowRepo(db *gorm.DB, log *logger.Logger) UserFlowRepo {
	return story.NewUserFlowRepo(db, log)
}

func NewSurveyRepo(db *gorm.DB, log *logger.Logger) SurveyRepo {
	return survey.NewSurveyRepo(db, log)
}

func NewSessionRepo(db *gorm.DB, log *logger.Logger) SessionRepo {
	return survey.NewSessionRepo(db, log)
}

func NewResponseRepo(db *gorm.DB, log *logger.Logger) ResponseRepo {
	return survey.NewResponseRepo(db, log)
}

func NewProcessedEventRepo(db *gorm.DB, log *logger.Logger) ProcessedEventRepo {
	return webhook.NewProcessedEventRepo(db, log)
}

// Set bundles every repo the services need.
type Set struct {
	Customer       CustomerRepo
	Catalog        CatalogRepo
	Story          StoryRepo
	UserFlow       UserFlowRepo
	Survey         SurveyRepo
	Session        SessionRepo
	Response       ResponseRepo
	ProcessedEvent ProcessedEventRepo
}

func NewSet(db *gorm.DB, log *logger.Logger) Set {
	return Set{
		Customer:       NewCustomerRepo(db, log),
		Catalog:        NewCatalogRepo(db, log),
		Story:          NewStoryRepo(db, log),
		UserFlow:       NewUserFlowRepo(db, log),
		Survey:         NewSurveyRepo(db, log),
		Session:        NewSessionRepo(db, log),
		Response:       NewResponseRepo(db, log),
		ProcessedEvent: NewProcessedEventRepo(db, log),
	}
}
