package entity

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrLeadNotFound = errors.New("lead not found")

type Lead struct {
	ID              int64      `json:"id"`
	Company         string     `json:"company"`
	ContactName     string     `json:"contact_name"`
	JobTitle        string     `json:"job_title"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone"`
	LinkedIn        string     `json:"linkedin"`
	Location        string     `json:"location"`
	CompanySize     string     `json:"company_size"`
	Industry        string     `json:"industry"`
	Interest        string     `json:"interest"`
	Stage           Stage      `json:"stage"`
	Notes           string     `json:"notes"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	LastContactedAt *time.Time `json:"last_contacted_at,omitempty"`
}

// LeadInput is the payload accepted by create and update. Every field is
// optional text; missing values are the empty string.
type LeadInput struct {
	Company     string `json:"company" validate:"required"`
	ContactName string `json:"contact_name"`
	JobTitle    string `json:"job_title"`
	Email       string `json:"email" validate:"omitempty,leademail"`
	Phone       string `json:"phone"`
	LinkedIn    string `json:"linkedin"`
	Location    string `json:"location"`
	CompanySize string `json:"company_size"`
	Industry    string `json:"industry"`
	Interest    string `json:"interest"`
	Stage       string `json:"stage" validate:"omitempty,stage"`
	Notes       string `json:"notes"`
}

// Normalized returns a copy with every field trimmed.
func (in LeadInput) Normalized() LeadInput {
	return LeadInput{
		Company:     strings.TrimSpace(in.Company),
		ContactName: strings.TrimSpace(in.ContactName),
		JobTitle:    strings.TrimSpace(in.JobTitle),
		Email:       strings.TrimSpace(in.Email),
		Phone:       strings.TrimSpace(in.Phone),
		LinkedIn:    strings.TrimSpace(in.LinkedIn),
		Location:    strings.TrimSpace(in.Location),
		CompanySize: strings.TrimSpace(in.CompanySize),
		Industry:    strings.TrimSpace(in.Industry),
		Interest:    strings.TrimSpace(in.Interest),
		Stage:       strings.TrimSpace(in.Stage),
		Notes:       strings.TrimSpace(in.Notes),
	}
}

// Apply overwrites the lead's text fields with the input. Stage and
// timestamps are left to ApplyStage.
func (l *Lead) Apply(in LeadInput) {
	l.Company = in.Company
	l.ContactName = in.ContactName
	l.JobTitle = in.JobTitle
	l.Email = in.Email
	l.Phone = in.Phone
	l.LinkedIn = in.LinkedIn
	l.Location = in.Location
	l.CompanySize = in.CompanySize
	l.Industry = in.Industry
	l.Interest = in.Interest
	l.Notes = in.Notes
}

// ApplyStage moves the lead into stage and refreshes UpdatedAt.
// LastContactedAt is stamped only on the edge into StageContacted.
// It reports whether the stage actually changed.
func (l *Lead) ApplyStage(stage Stage, now time.Time) bool {
	if now.Before(l.UpdatedAt) {
		now = l.UpdatedAt
	}
	changed := l.Stage != stage
	if stage == StageContacted && l.Stage != StageContacted {
		contacted := now
		l.LastContactedAt = &contacted
	}
	l.Stage = stage
	l.UpdatedAt = now
	return changed
}

// FilterAll on Stage or Interest means no restriction, as does "".
const FilterAll = "All"

type LeadFilter struct {
	Search   string
	Stage    string
	Interest string
}

// Unrestricted reports whether a stage or interest filter value matches
// everything. "Todos" is accepted for older clients.
func Unrestricted(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == FilterAll || v == "Todos"
}

type InterestCount struct {
	Interest string `json:"interest"`
	Count    int    `json:"count"`
}

type RecentUpdate struct {
	ID        int64     `json:"id"`
	Company   string    `json:"company"`
	Stage     Stage     `json:"stage"`
	UpdatedAt time.Time `json:"updated_at"`
}

type LeadRepositoryInterface interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, lead *Lead) error
	Update(ctx context.Context, lead *Lead) error
	Delete(ctx context.Context, id int64) (bool, error)
	FindByID(ctx context.Context, id int64) (*Lead, error)
	FindByEmail(ctx context.Context, email string) (*Lead, error)
	List(ctx context.Context, filter LeadFilter) ([]Lead, error)
	DistinctInterests(ctx context.Context) ([]string, error)
	CountByStage(ctx context.Context) (map[Stage]int, error)
	Count(ctx context.Context) (int, error)
	TopInterests(ctx context.Context, limit int) ([]InterestCount, error)
	Recent(ctx context.Context, limit int) ([]RecentUpdate, error)
}
