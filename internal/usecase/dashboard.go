package usecase

import (
	"context"

	"github.com/xavierca1/leadflow/internal/entity"
)

const (
	DefaultTopInterests = 5
	DefaultRecent       = 10
)

type DashboardData struct {
	Total        int                    `json:"total"`
	ByStage      map[entity.Stage]int   `json:"by_stage"`
	TopInterests []entity.InterestCount `json:"top_interests"`
	Recent       []entity.RecentUpdate  `json:"recent"`
}

// Dashboard gathers the aggregates shown on the overview screen.
func (s *LeadService) Dashboard(ctx context.Context, topInterests, recent int) (*DashboardData, error) {
	total, err := s.Repo.Count(ctx)
	if err != nil {
		return nil, err
	}

	byStage, err := s.Repo.CountByStage(ctx)
	if err != nil {
		return nil, err
	}

	top, err := s.Repo.TopInterests(ctx, topInterests)
	if err != nil {
		return nil, err
	}

	latest, err := s.Repo.Recent(ctx, recent)
	if err != nil {
		return nil, err
	}

	return &DashboardData{
		Total:        total,
		ByStage:      byStage,
		TopInterests: top,
		Recent:       latest,
	}, nil
}
