package activity

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/castlemart/castlemart-backend/pkg/db/models"
	"github.com/castlemart/castlemart-backend/pkg/logger"
)

type stubActivityRepo struct {
	created        []*models.ActivityRecord
	createErr      error
	listed         []models.ActivityRecord
	gotSubjectType string
	gotSubjectID   uuid.UUID
	gotLimit       int
}

func (s *stubActivityRepo) Create(ctx context.Context, record *models.ActivityRecord) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, record)
	return nil
}

func (s *stubActivityRepo) ListBySubject(ctx context.Context, subjectType string, subjectID uuid.UUID, limit int) ([]models.ActivityRecord, error) {
	s.gotSubjectType = subjectType
	s.gotSubjectID = subjectID
	s.gotLimit = limit
	return s.listed, nil
}

func newActivityService(t *testing.T, repo Repository) Service {
	t.Helper()
	svc, err := NewService(repo, logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestRecordPersistsEntry(t *testing.T) {
	t.Parallel()

	repo := &stubActivityRepo{}
	svc := newActivityService(t, repo)

	orderID := uuid.New()
	svc.Record(context.Background(), Entry{
		Actor:       "user:" + uuid.NewString(),
		Action:      "order.placed",
		SubjectType: SubjectOrder,
		SubjectID:   &orderID,
		Details:     map[string]any{"total_cents": 5499},
	})

	if len(repo.created) != 1 {
		t.Fatalf("expected 1 record, got %d", len(repo.created))
	}
	record := repo.created[0]
	if record.Action != "order.placed" {
		t.Fatalf("unexpected action %q", record.Action)
	}
	if len(record.Details) == 0 {
		t.Fatal("expected details payload")
	}
}

func TestRecordSwallowsRepoFailure(t *testing.T) {
	t.Parallel()

	repo := &stubActivityRepo{createErr: errors.New("db down")}
	svc := newActivityService(t, repo)

	svc.Record(context.Background(), Entry{
		Actor:       "system",
		Action:      "order.expired",
		SubjectType: SubjectOrder,
	})
}

func TestRecordDropsIncompleteEntry(t *testing.T) {
	t.Parallel()

	repo := &stubActivityRepo{}
	svc := newActivityService(t, repo)

	svc.Record(context.Background(), Entry{Action: "order.placed"})

	if len(repo.created) != 0 {
		t.Fatalf("expected dropped entry, got %d records", len(repo.created))
	}
}

func TestHistoryReadsSubjectTrail(t *testing.T) {
	t.Parallel()

	orderID := uuid.New()
	repo := &stubActivityRepo{listed: []models.ActivityRecord{
		{ID: uuid.New(), Actor: "system", Action: "order.paid", SubjectType: SubjectOrder, SubjectID: &orderID},
	}}
	svc := newActivityService(t, repo)

	records, err := svc.History(context.Background(), SubjectOrder, orderID, 25)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(records) != 1 || records[0].Action != "order.paid" {
		t.Fatalf("unexpected records: %+v", records)
	}
	if repo.gotSubjectType != SubjectOrder || repo.gotSubjectID != orderID || repo.gotLimit != 25 {
		t.Fatalf("unexpected query: %s %s %d", repo.gotSubjectType, repo.gotSubjectID, repo.gotLimit)
	}
}
