package events

import "time"

// Event is a scheduled squad gathering, optionally capped.
type Event struct {
	EventID          string `gorm:"column:event_id;primaryKey;size:190;not null"`
	SquadID          string `gorm:"column:squad_id;size:190;not null;index:idx_events_squad_start,priority:1"`
	CreatedBy        string `gorm:"column:created_by;size:190;not null"`
	Title            string `gorm:"column:title;size:320;not null"`
	Description      string `gorm:"column:description;type:text"`
	Location         string `gorm:"column:location;size:320"`
	StartTimeSeconds int64  `gorm:"column:start_time_s;not null;index:idx_events_squad_start,priority:2"`
	EndTimeSeconds   int64  `gorm:"column:end_time_s"`
	MaxParticipants  int    `gorm:"column:max_participants;not null;default:0"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Event) TableName() string {
	return "events"
}

// EventParticipant is one user's RSVP row; unique per event and user.
type EventParticipant struct {
	ParticipantID    string `gorm:"column:participant_id;primaryKey;size:190;not null"`
	EventID          string `gorm:"column:event_id;size:190;not null;uniqueIndex:idx_event_participants_unique,priority:1"`
	UserID           string `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_event_participants_unique,priority:2"`
	Status           string `gorm:"column:status;size:32;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (EventParticipant) TableName() string {
	return "event_participants"
}

// RecordID identifies the participant row within a view store.
func (p EventParticipant) RecordID() string {
	return p.ParticipantID
}

// RecordScope is the event partitioning participant subscriptions.
func (p EventParticipant) RecordScope() string {
	return p.EventID
}

// RecordCreatedAt is the feed ordering timestamp.
func (p EventParticipant) RecordCreatedAt() time.Time {
	return time.Unix(p.CreatedAtSeconds, 0).UTC()
}
