package polls

const (
	PollTypeSingle   = "single"
	PollTypeMultiple = "multiple"
)

// Poll is a squad vote, single or multiple choice, optionally deadlined.
type Poll struct {
	PollID           string `gorm:"column:poll_id;primaryKey;size:190;not null"`
	SquadID          string `gorm:"column:squad_id;size:190;not null;index"`
	CreatedBy        string `gorm:"column:created_by;size:190;not null"`
	Question         string `gorm:"column:question;size:640;not null"`
	PollType         string `gorm:"column:poll_type;size:32;not null"`
	IsClosed         bool   `gorm:"column:is_closed;not null;default:false"`
	EndsAtSeconds    int64  `gorm:"column:ends_at_s"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Poll) TableName() string {
	return "polls"
}

// PollOption is one selectable answer, positioned within its poll.
type PollOption struct {
	OptionID   string `gorm:"column:option_id;primaryKey;size:190;not null"`
	PollID     string `gorm:"column:poll_id;size:190;not null;index"`
	Label      string `gorm:"column:label;size:320;not null"`
	OrderIndex int    `gorm:"column:order_index;not null"`
}

// TableName provides the explicit table binding for GORM.
func (PollOption) TableName() string {
	return "poll_options"
}

// PollVote is one user's selection of one option; unique per poll,
// option and user.
type PollVote struct {
	VoteID           string `gorm:"column:vote_id;primaryKey;size:190;not null"`
	PollID           string `gorm:"column:poll_id;size:190;not null;uniqueIndex:idx_poll_votes_unique,priority:1"`
	OptionID         string `gorm:"column:option_id;size:190;not null;uniqueIndex:idx_poll_votes_unique,priority:2"`
	UserID           string `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_poll_votes_unique,priority:3"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (PollVote) TableName() string {
	return "poll_votes"
}
