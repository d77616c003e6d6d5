package services

import (
	"context"
	"errors"
	"testing"

	"github.com/cmpc-libros/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAuditRepo struct {
	entries    []types.AuditEntry
	failInsert error
}

func (f *fakeAuditRepo) Insert(ctx context.Context, entry types.AuditEntry) error {
	if f.failInsert != nil {
		return f.failInsert
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditRepo) List(ctx context.Context, limit, offset int) ([]types.AuditEntry, error) {
	return f.entries, nil
}

var _ AuditRepository = (*fakeAuditRepo)(nil)

func TestAuditService_Record(t *testing.T) {
	repo := &fakeAuditRepo{}
	svc := NewAuditService(repo, zap.NewNop().Sugar())

	svc.Record(context.Background(), types.AuditEntry{
		Action:     "books.create",
		Route:      "/books",
		Method:     "POST",
		StatusCode: 201,
	})

	require.Len(t, repo.entries, 1)
	assert.Equal(t, "books.create", repo.entries[0].Action)
}

func TestAuditService_Record_SwallowsInsertFailure(t *testing.T) {
	repo := &fakeAuditRepo{failInsert: errors.New("db down")}
	svc := NewAuditService(repo, zap.NewNop().Sugar())

	// Must not panic or propagate the failure.
	svc.Record(context.Background(), types.AuditEntry{Action: "books.delete"})
	assert.Empty(t, repo.entries)
}

func TestSeedSampleBooks(t *testing.T) {
	repo := newFakeBookRepo()
	svc := NewBookService(repo, nil)

	inserted, err := svc.SeedSampleBooks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, inserted)

	// Reruns never duplicate the catalog.
	inserted, err = svc.SeedSampleBooks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, count)
}
