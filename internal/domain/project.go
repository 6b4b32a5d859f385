package domain

import "time"

// Project groups one publishing target and its monitored channels.
type Project struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
}

// WordPressSite holds the credentials used to publish for a project.
type WordPressSite struct {
	ID          string    `db:"id"`
	ProjectID   string    `db:"project_id"`
	Name        string    `db:"name"`
	URL         string    `db:"url"`
	Username    string    `db:"username"`
	AppPassword string    `db:"app_password"`
	CreatedAt   time.Time `db:"created_at"`
}

// SourceKind selects how a channel's videos are listed.
type SourceKind string

const (
	SourceRSS    SourceKind = "rss"
	SourceSearch SourceKind = "search"
)

// Channel is a monitored YouTube channel inside a project.
// MonitoringActive is the durable intent; the running monitor converges to it.
type Channel struct {
	ID               string     `db:"id"`
	ProjectID        string     `db:"project_id"`
	ExternalID       string     `db:"channel_id"`
	Name             string     `db:"channel_name"`
	Source           SourceKind `db:"source"`
	AutoPublish      bool       `db:"auto_publish"`
	MonitoringActive bool       `db:"monitoring_active"`
	CreatedAt        time.Time  `db:"created_at"`
}

// NewProject is the input for creating a project with its site and channels.
type NewProject struct {
	Name        string
	Site        NewSite
	ChannelIDs  []string
	AutoPublish bool
}

// NewSite describes the WordPress target of a new project.
type NewSite struct {
	Name        string
	URL         string
	Username    string
	AppPassword string
}

// NewChannel describes a channel to add to an existing project.
type NewChannel struct {
	ExternalID  string
	Name        string
	Source      SourceKind
	AutoPublish bool
}

// ChannelStatus is a channel row merged with its live monitor state.
type ChannelStatus struct {
	Channel
	Monitoring bool
	LastPoll   time.Time
}

// ProjectStatus is the snapshot returned to callers of the orchestrator.
type ProjectStatus struct {
	Project  Project
	Site     *WordPressSite
	Channels []ChannelStatus
}
