package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/ows4444/pluginforge/internal/registry"
)

// newTestStore connects to PLUGINFORGE_TEST_DATABASE_URL when set, otherwise
// skips. Exercising real CRUD behavior needs a live Postgres instance; see
// the repository's docker-compose for a local one.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("PLUGINFORGE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PLUGINFORGE_TEST_DATABASE_URL not set, skipping Postgres integration test")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := New(pool, nil, nil)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func testRecord(name string) *registry.Record {
	sum := sha256.Sum256([]byte(name))
	now := time.Now().UTC()
	return &registry.Record{
		Name:         name,
		Version:      "1.0.0",
		Manifest:     `{"name":"` + name + `"}`,
		FilePath:     "/plugins/" + name + "-1.0.0.zip",
		FileSize:     1024,
		Checksum:     hex.EncodeToString(sum[:]),
		UploadDate:   now,
		LastAccessed: now,
		Status:       registry.StatusActive,
	}
}

func TestStore_SaveAndGetByName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("greeter")
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.GetByName(ctx, rec.Name)
	require.NoError(t, err)
	require.Equal(t, rec.Checksum, got.Checksum)
}
