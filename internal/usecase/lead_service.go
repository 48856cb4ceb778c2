package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/xavierca1/leadflow/internal/entity"
)

// LeadService is the only writer of lead data. Every mutation validates its
// input first and runs under mu, so the read-check-write of update and
// update_stage is never interleaved with another writer in the process.
type LeadService struct {
	Repo      entity.LeadRepositoryInterface
	Publisher EventPublisher
	Logger    logrus.FieldLogger
	Now       func() time.Time

	mu sync.Mutex
}

func NewLeadService(repo entity.LeadRepositoryInterface, publisher EventPublisher, logger logrus.FieldLogger) *LeadService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LeadService{
		Repo:      repo,
		Publisher: publisher,
		Logger:    logger,
		Now:       time.Now,
	}
}

func (s *LeadService) Init(ctx context.Context) error {
	return s.Repo.Init(ctx)
}

func (s *LeadService) Create(ctx context.Context, input entity.LeadInput) (int64, error) {
	input = input.Normalized()
	if err := ValidateLeadInput(input); err != nil {
		return 0, err
	}

	stage := entity.StageNew
	if input.Stage != "" {
		stage = entity.Stage(input.Stage)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	lead := &entity.Lead{CreatedAt: now}
	lead.Apply(input)
	lead.ApplyStage(stage, now)

	if err := s.Repo.Create(ctx, lead); err != nil {
		return 0, err
	}

	s.Logger.WithFields(logrus.Fields{
		"lead_id": lead.ID,
		"stage":   lead.Stage,
	}).Info("lead created")

	s.publishStageChange(ctx, lead, "")
	return lead.ID, nil
}

// Update replaces every text field of the lead. A blank stage keeps the
// current one.
func (s *LeadService) Update(ctx context.Context, id int64, input entity.LeadInput) error {
	input = input.Normalized()
	if err := ValidateLeadInput(input); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lead, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	from := lead.Stage
	stage := lead.Stage
	if input.Stage != "" {
		stage = entity.Stage(input.Stage)
	}

	lead.Apply(input)
	changed := lead.ApplyStage(stage, s.Now())

	if err := s.Repo.Update(ctx, lead); err != nil {
		return err
	}

	s.Logger.WithField("lead_id", id).Info("lead updated")

	if changed {
		s.publishStageChange(ctx, lead, from)
	}
	return nil
}

// UpdateStage moves a lead to another stage without touching other fields.
// A blank stage is rejected like any other unknown value.
func (s *LeadService) UpdateStage(ctx context.Context, id int64, raw string) error {
	stage, err := ParseStage(raw)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lead, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	from := lead.Stage
	changed := lead.ApplyStage(stage, s.Now())

	if err := s.Repo.Update(ctx, lead); err != nil {
		return err
	}

	s.Logger.WithFields(logrus.Fields{
		"lead_id": id,
		"from":    from,
		"to":      stage,
	}).Info("lead stage updated")

	if changed {
		s.publishStageChange(ctx, lead, from)
	}
	return nil
}

// Delete is idempotent: removing an id that does not exist succeeds with
// removed set to false.
func (s *LeadService) Delete(ctx context.Context, id int64) (removed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err = s.Repo.Delete(ctx, id)
	if err != nil {
		return false, err
	}

	if removed {
		s.Logger.WithField("lead_id", id).Info("lead deleted")
	}
	return removed, nil
}

// Get reports a missing lead through ok, not through err.
func (s *LeadService) Get(ctx context.Context, id int64) (lead *entity.Lead, ok bool, err error) {
	lead, err = s.Repo.FindByID(ctx, id)
	if errors.Is(err, entity.ErrLeadNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return lead, true, nil
}

func (s *LeadService) List(ctx context.Context, filter entity.LeadFilter) ([]entity.Lead, error) {
	return s.Repo.List(ctx, filter)
}

func (s *LeadService) DistinctInterests(ctx context.Context) ([]string, error) {
	return s.Repo.DistinctInterests(ctx)
}

func (s *LeadService) CountByStage(ctx context.Context) (map[entity.Stage]int, error) {
	return s.Repo.CountByStage(ctx)
}

func (s *LeadService) TotalCount(ctx context.Context) (int, error) {
	return s.Repo.Count(ctx)
}

func (s *LeadService) TopInterests(ctx context.Context, limit int) ([]entity.InterestCount, error) {
	return s.Repo.TopInterests(ctx, limit)
}

func (s *LeadService) Recent(ctx context.Context, limit int) ([]entity.RecentUpdate, error) {
	return s.Repo.Recent(ctx, limit)
}

// publishStageChange runs after the write is committed, so a broker failure
// is logged and never undoes it.
func (s *LeadService) publishStageChange(ctx context.Context, lead *entity.Lead, from entity.Stage) {
	ev := entity.StageChangedEvent{
		EventID:     uuid.NewString(),
		LeadID:      lead.ID,
		Company:     lead.Company,
		ContactName: lead.ContactName,
		Email:       lead.Email,
		From:        from,
		To:          lead.Stage,
		ChangedAt:   lead.UpdatedAt,
	}

	if err := s.Publisher.PublishStageChanged(ctx, ev); err != nil {
		s.Logger.WithError(err).WithField("lead_id", lead.ID).Warn("publish stage change failed")
	}
}
