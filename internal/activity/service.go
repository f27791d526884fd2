package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/castlemart/castlemart-backend/pkg/db/models"
	"github.com/castlemart/castlemart-backend/pkg/logger"
)

// Subject types recorded by the engine.
const (
	SubjectOrder   = "order"
	SubjectProduct = "product"
	SubjectCart    = "cart"
)

// Entry is one audit trail fact.
type Entry struct {
	Actor       string
	Action      string
	SubjectType string
	SubjectID   *uuid.UUID
	Details     any
}

// Service records audit entries. Record is fire-and-forget: failures are
// logged and swallowed so audit writes can never fail the calling operation.
type Service interface {
	Record(ctx context.Context, entry Entry)
	History(ctx context.Context, subjectType string, subjectID uuid.UUID, limit int) ([]models.ActivityRecord, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService builds the activity service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("activity repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Record(ctx context.Context, entry Entry) {
	if entry.Actor == "" || entry.Action == "" || entry.SubjectType == "" {
		s.logg.Warn(ctx, "activity entry dropped: actor, action, and subject type are required")
		return
	}

	record := &models.ActivityRecord{
		Actor:       entry.Actor,
		Action:      entry.Action,
		SubjectType: entry.SubjectType,
		SubjectID:   entry.SubjectID,
	}
	if entry.Details != nil {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			s.logg.Error(ctx, "marshal activity details", err)
		} else {
			record.Details = raw
		}
	}

	if err := s.repo.Create(ctx, record); err != nil {
		ctx = s.logg.WithField(ctx, "action", entry.Action)
		s.logg.Error(ctx, "record activity", err)
	}
}

func (s *service) History(ctx context.Context, subjectType string, subjectID uuid.UUID, limit int) ([]models.ActivityRecord, error) {
	return s.repo.ListBySubject(ctx, subjectType, subjectID, limit)
}
