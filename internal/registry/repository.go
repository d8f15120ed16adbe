package registry

import "context"

// Repository is the storage contract, consumed from external storage
// collaborators. All operations may fail with storage-kind errors; callers
// classify via errors.Is against the sentinel errors in this package.
type Repository interface {
	// Save upserts by Name: on conflict, replace fields but preserve
	// DownloadCount.
	Save(ctx context.Context, rec *Record) error

	// GetByName returns the record with Status=active, or ErrNotFound. This
	// filter is applied even though List supports Status="all"; tightening
	// it to match List's behavior is a product decision, not made here.
	GetByName(ctx context.Context, name string) (*Record, error)

	// GetByChecksum returns any record matching checksum, or ErrNotFound.
	GetByChecksum(ctx context.Context, checksum string) (*Record, error)

	// List filters/sorts/paginates per opts.
	List(ctx context.Context, opts ListOptions) ([]*Record, error)

	// Search performs a case-insensitive substring match against name,
	// description, author, tags; active records only; sorted by name.
	Search(ctx context.Context, q SearchQuery) ([]*Record, error)

	// RecordDownload atomically increments DownloadCount, sets
	// LastAccessed, and appends a DownloadRecord.
	RecordDownload(ctx context.Context, name, userAgent, ipAddress string) error

	// Delete removes the record and cascades its downloads.
	Delete(ctx context.Context, name string) error

	// UpdateStatus transitions status and bumps UpdatedAt.
	UpdateStatus(ctx context.Context, name string, status Status) error

	// Stats returns aggregate totals.
	Stats(ctx context.Context) (Stats, error)

	// HealthCheck reports liveness.
	HealthCheck(ctx context.Context) HealthStatus
}
