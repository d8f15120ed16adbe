// Package registry defines the repository abstraction: the contract
// consumed from external storage collaborators, plus the blob store
// sibling package.
package registry

import "time"

// Status is a PluginRecord's or PluginVersionRecord's lifecycle state.
type Status string

const (
	StatusActive       Status = "active"
	StatusDeprecated   Status = "deprecated"
	StatusDisabled     Status = "disabled"
	StatusArchived     Status = "archived"
	StatusRollbackTarg Status = "rollback_target"
)

// Record is the canonical stored form of a plugin's primary row. The
// versions table owns per-version payloads; this row mirrors the active
// version's fields.
type Record struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Version       string    `json:"version"`
	Description   string    `json:"description"`
	Author        string    `json:"author"`
	License       string    `json:"license"`
	Manifest      string    `json:"manifest"` // serialized plugin.manifest.json
	FilePath      string    `json:"filePath"`
	FileSize      int64     `json:"fileSize"`
	Checksum      string    `json:"checksum"` // SHA-256 hex, unique
	UploadDate    time.Time `json:"uploadDate"`
	LastAccessed  time.Time `json:"lastAccessed"`
	DownloadCount int64     `json:"downloadCount"`
	Status        Status    `json:"status"`
	Tags          []string  `json:"tags,omitempty"`
	Dependencies  []string  `json:"dependencies,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// DownloadRecord is one append-only download event.
type DownloadRecord struct {
	ID           string    `json:"id"`
	PluginID     string    `json:"pluginId"`
	Version      string    `json:"version"`
	DownloadDate time.Time `json:"downloadDate"`
	UserAgent    string    `json:"userAgent,omitempty"`
	IPAddress    string    `json:"ipAddress,omitempty"`
}

// ListOptions filters/paginates List.
type ListOptions struct {
	Status   Status // "" means StatusActive; "all" bypasses the filter
	SortBy   string // "name" | "uploadDate" | "downloadCount" | "version"
	SortDesc bool
	Offset   int
	Limit    int
}

// SearchQuery backs GET /plugins/search.
type SearchQuery struct {
	Q string
}

// Stats backs GET /stats.
type Stats struct {
	TotalPlugins    int64
	TotalDownloads  int64
	AverageFileSize float64
	MostPopular     string
	OldestName      string
	NewestName      string
}

// HealthStatus backs GET /health's repository contribution.
type HealthStatus struct {
	Healthy bool
	Detail  string
}
