package entity

import "time"

type StageChangedEvent struct {
	EventID     string    `json:"event_id"`
	LeadID      int64     `json:"lead_id"`
	Company     string    `json:"company"`
	ContactName string    `json:"contact_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	From        Stage     `json:"from,omitempty"` // empty on creation
	To          Stage     `json:"to"`
	ChangedAt   time.Time `json:"changed_at"`
}

// FirstContact reports whether the change entered StageContacted.
func (e StageChangedEvent) FirstContact() bool {
	return e.To == StageContacted && e.From != StageContacted
}
