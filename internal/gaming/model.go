package gaming

// LFGPost is a looking-for-group listing with a player cap.
type LFGPost struct {
	PostID           string `gorm:"column:post_id;primaryKey;size:190;not null"`
	SquadID          string `gorm:"column:squad_id;size:190;not null;index"`
	CreatedBy        string `gorm:"column:created_by;size:190;not null"`
	Game             string `gorm:"column:game;size:190;not null"`
	Description      string `gorm:"column:description;type:text"`
	MaxPlayers       int    `gorm:"column:max_players;not null;default:0"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (LFGPost) TableName() string {
	return "lfg_posts"
}

// LFGParticipant is one player's membership row; unique per post and user.
type LFGParticipant struct {
	ParticipantID    string `gorm:"column:participant_id;primaryKey;size:190;not null"`
	PostID           string `gorm:"column:post_id;size:190;not null;uniqueIndex:idx_lfg_participants_unique,priority:1"`
	UserID           string `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_lfg_participants_unique,priority:2"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (LFGParticipant) TableName() string {
	return "lfg_participants"
}
