package services

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RobNhz/zaptec-invoice-app/database"
	"github.com/RobNhz/zaptec-invoice-app/models"
	"github.com/RobNhz/zaptec-invoice-app/services/storage"
)

func newTestStore(t *testing.T) *database.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")

	require.NoError(t, database.RunMigrations(path))
	db, err := database.InitDB(path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return database.NewStore(db)
}

func date(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func seedOwner(t *testing.T, store *database.Store, id string) models.Owner {
	t.Helper()
	owner := models.Owner{ID: id, Name: "Owner " + id, Address: "CBV 12E\n254 54 Helsingborg", ChargerID: id}
	_, err := store.EnsureOwner(context.Background(), nil, owner)
	require.NoError(t, err)
	return owner
}

func seedConsumption(t *testing.T, store *database.Store, charger, start, end string, kwh, price float64) {
	t.Helper()
	_, err := store.InsertConsumption(context.Background(), nil, models.ConsumptionRecord{
		ChargerID:   charger,
		PeriodStart: start,
		PeriodEnd:   end,
		KWhUsed:     kwh,
		CostPerKWh:  price,
		TotalCost:   kwh * price,
		FetchedAt:   time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}

// stubRenderer fails for the owners listed in failFor.
type stubRenderer struct {
	mu      sync.Mutex
	failFor map[string]bool
	docs    []InvoiceDocument
}

func (r *stubRenderer) Render(ctx context.Context, doc InvoiceDocument) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[doc.Owner.ID] {
		return nil, fmt.Errorf("template exploded for %s", doc.Owner.ID)
	}
	r.docs = append(r.docs, doc)
	return []byte("invoice " + doc.Owner.ID), nil
}

func (r *stubRenderer) ContentType() string { return "text/plain" }
func (r *stubRenderer) Extension() string   { return ".txt" }

// memoryDocuments is an in-memory storage.DocumentStore.
type memoryDocuments struct {
	mu      sync.Mutex
	docs    map[string][]byte
	putErr  error
	deleted []string
}

func newMemoryDocuments() *memoryDocuments {
	return &memoryDocuments{docs: map[string][]byte{}}
}

func (m *memoryDocuments) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return "", m.putErr
	}
	m.docs[name] = data
	return name, nil
}

func (m *memoryDocuments) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	return nil, storage.ErrNotFound
}

func (m *memoryDocuments) Delete(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, ref)
	m.deleted = append(m.deleted, ref)
	return nil
}

func (m *memoryDocuments) URL(ctx context.Context, ref string) (string, error) {
	return "", nil
}
