// Package memory implements registry.Repository with an in-memory map.
//
// Intended for development/testing and as a graceful-degradation fallback
// when the configured durable backend is unavailable. Data is not
// persisted: it is lost on restart.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ows4444/pluginforge/internal/registry"
)

const defaultCapacity = 10000

var _ registry.Repository = (*Store)(nil)

// Store implements registry.Repository using an in-memory map keyed by
// plugin name. Thread-safe via RWMutex.
type Store struct {
	mu        sync.RWMutex
	records   map[string]*registry.Record
	downloads map[string][]*registry.DownloadRecord
	logger    *slog.Logger
	capacity  int
	nextID    int64
}

// New creates an in-memory Repository. Logs a warning on creation since
// this backend does not persist data.
func New(logger *slog.Logger) *Store {
	logger.Warn("in-memory registry store created, data will not persist across restarts")
	return &Store{
		records:   make(map[string]*registry.Record),
		downloads: make(map[string][]*registry.DownloadRecord),
		logger:    logger,
		capacity:  defaultCapacity,
	}
}

func copyRecord(r *registry.Record) *registry.Record {
	c := *r
	if r.Tags != nil {
		c.Tags = append([]string(nil), r.Tags...)
	}
	if r.Dependencies != nil {
		c.Dependencies = append([]string(nil), r.Dependencies...)
	}
	return &c
}

func (s *Store) Save(ctx context.Context, rec *registry.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[rec.Name]
	if !ok && len(s.records) >= s.capacity {
		s.logger.Warn("registry memory store capacity exceeded, evicting oldest record",
			"capacity", s.capacity, "current", len(s.records))
		var oldestName string
		var oldestAt time.Time
		for name, r := range s.records {
			if oldestName == "" || r.CreatedAt.Before(oldestAt) {
				oldestName, oldestAt = name, r.CreatedAt
			}
		}
		if oldestName != "" {
			delete(s.records, oldestName)
			delete(s.downloads, oldestName)
		}
	}

	next := copyRecord(rec)
	if ok {
		next.DownloadCount = existing.DownloadCount
		if next.CreatedAt.IsZero() {
			next.CreatedAt = existing.CreatedAt
		}
	}
	if next.ID == "" {
		s.nextID++
		next.ID = recordID(s.nextID)
	}
	next.UpdatedAt = time.Now().UTC()
	s.records[rec.Name] = next
	return nil
}

func recordID(n int64) string {
	return "rec_" + time.Now().UTC().Format("20060102150405") + "_" + itoa(n)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (s *Store) GetByName(ctx context.Context, name string) (*registry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[name]
	if !ok || rec.Status != registry.StatusActive {
		return nil, registry.ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *Store) GetByChecksum(ctx context.Context, checksum string) (*registry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.Checksum == checksum {
			return copyRecord(rec), nil
		}
	}
	return nil, registry.ErrNotFound
}

func (s *Store) List(ctx context.Context, opts registry.ListOptions) ([]*registry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := opts.Status
	if status == "" {
		status = registry.StatusActive
	}

	out := make([]*registry.Record, 0, len(s.records))
	for _, rec := range s.records {
		if status != "all" && rec.Status != status {
			continue
		}
		out = append(out, copyRecord(rec))
	}

	sort.Slice(out, func(i, j int) bool {
		var less bool
		switch opts.SortBy {
		case "uploadDate":
			less = out[i].UploadDate.Before(out[j].UploadDate)
		case "downloadCount":
			less = out[i].DownloadCount < out[j].DownloadCount
		case "version":
			less = out[i].Version < out[j].Version
		default:
			less = out[i].Name < out[j].Name
		}
		if opts.SortDesc {
			return !less
		}
		return less
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []*registry.Record{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *Store) Search(ctx context.Context, q registry.SearchQuery) ([]*registry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(q.Q)
	out := make([]*registry.Record, 0)
	for _, rec := range s.records {
		if rec.Status != registry.StatusActive {
			continue
		}
		haystack := strings.ToLower(rec.Name + " " + rec.Description + " " + rec.Author + " " + strings.Join(rec.Tags, " "))
		if strings.Contains(haystack, needle) {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) RecordDownload(ctx context.Context, name, userAgent, ipAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[name]
	if !ok {
		return registry.ErrNotFound
	}
	rec.DownloadCount++
	rec.LastAccessed = time.Now().UTC()

	s.nextID++
	s.downloads[name] = append(s.downloads[name], &registry.DownloadRecord{
		ID:           recordID(s.nextID),
		PluginID:     rec.ID,
		Version:      rec.Version,
		DownloadDate: rec.LastAccessed,
		UserAgent:    userAgent,
		IPAddress:    ipAddress,
	})
	return nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[name]; !ok {
		return registry.ErrNotFound
	}
	delete(s.records, name)
	delete(s.downloads, name)
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, name string, status registry.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[name]
	if !ok {
		return registry.ErrNotFound
	}
	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) Stats(ctx context.Context) (registry.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats registry.Stats
	var totalSize int64
	var mostPopular *registry.Record
	var oldest, newest *registry.Record

	for _, rec := range s.records {
		stats.TotalPlugins++
		stats.TotalDownloads += rec.DownloadCount
		totalSize += rec.FileSize
		if mostPopular == nil || rec.DownloadCount > mostPopular.DownloadCount {
			mostPopular = rec
		}
		if oldest == nil || rec.UploadDate.Before(oldest.UploadDate) {
			oldest = rec
		}
		if newest == nil || rec.UploadDate.After(newest.UploadDate) {
			newest = rec
		}
	}
	if stats.TotalPlugins > 0 {
		stats.AverageFileSize = float64(totalSize) / float64(stats.TotalPlugins)
	}
	if mostPopular != nil {
		stats.MostPopular = mostPopular.Name
	}
	if oldest != nil {
		stats.OldestName = oldest.Name
	}
	if newest != nil {
		stats.NewestName = newest.Name
	}
	return stats, nil
}

func (s *Store) HealthCheck(ctx context.Context) registry.HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return registry.HealthStatus{Healthy: true, Detail: "in-memory store, size=" + itoa(int64(len(s.records)))}
}

// Size returns the current number of stored records.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
