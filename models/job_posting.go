package models

const (
	JobChannelSource      = "source"
	JobChannelDestination = "destination"
)

// JobChannel is a forum watched for job threads or a text channel that
// receives crossposts.
type JobChannel struct {
	ID        string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	GuildID   string `gorm:"not null;uniqueIndex:idx_job_channel" json:"guild_id"`
	ChannelID string `gorm:"not null;uniqueIndex:idx_job_channel" json:"channel_id"`
	Kind      string `gorm:"type:varchar(16);not null;uniqueIndex:idx_job_channel;check:kind IN ('source','destination')" json:"kind"`

	Timestamps
}

// JobTag maps one forum tag to one role. A tag mapped to several roles has
// one row per role.
type JobTag struct {
	ID        string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	GuildID   string `gorm:"not null;uniqueIndex:idx_job_tag_role" json:"guild_id"`
	ChannelID string `gorm:"index;not null" json:"channel_id"` // forum the tag belongs to
	Name      string `gorm:"not null" json:"name"`
	Slug      string `gorm:"not null;uniqueIndex:idx_job_tag_role" json:"slug"`
	RoleID    string `gorm:"not null;uniqueIndex:idx_job_tag_role" json:"role_id"`

	Timestamps
}

// JobPostingStat counts crossposts that mentioned a role.
type JobPostingStat struct {
	GuildID  string `gorm:"primaryKey" json:"guild_id"`
	RoleID   string `gorm:"primaryKey" json:"role_id"`
	Postings int64  `json:"postings" gorm:"default:0"`

	Timestamps
}
