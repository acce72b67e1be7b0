package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/localbackend/internal/model"
	"github.com/vyrodovalexey/localbackend/internal/prefs"
)

// recordingPrefs wraps a Preferences, counting writes and optionally failing.
type recordingPrefs struct {
	prefs.Preferences
	puts   int
	getErr error
	putErr error
}

func (r *recordingPrefs) GetString(ctx context.Context, key string) (string, bool, error) {
	if r.getErr != nil {
		return "", false, r.getErr
	}
	return r.Preferences.GetString(ctx, key)
}

func (r *recordingPrefs) PutString(ctx context.Context, key, value string) error {
	if r.putErr != nil {
		return r.putErr
	}
	r.puts++
	return r.Preferences.PutString(ctx, key, value)
}

func newTestStore(t *testing.T) (*PrefsStore, *recordingPrefs) {
	t.Helper()
	rec := &recordingPrefs{Preferences: prefs.NewMemory()}
	return NewPrefsStore(rec, "", zap.NewNop()), rec
}

func strPtr(s string) *string {
	return &s
}

func TestNewPrefsStore_DefaultKey(t *testing.T) {
	s := NewPrefsStore(prefs.NewMemory(), "", zap.NewNop())

	if s.key != DefaultItemsKey {
		t.Errorf("key = %s, want %s", s.key, DefaultItemsKey)
	}
}

func TestPrefsStore_Create(t *testing.T) {
	tests := []struct {
		name        string
		itemName    string
		description string
		wantErr     error
	}{
		{
			name:        "valid item",
			itemName:    "Test Item",
			description: "A test item",
		},
		{
			name:     "empty description",
			itemName: "Simple Item",
		},
		{
			name:        "empty name",
			itemName:    "",
			description: "nameless",
			wantErr:     model.ErrEmptyName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			s, rec := newTestStore(t)
			ctx := context.Background()

			// Act
			created, err := s.Create(ctx, tt.itemName, tt.description)

			// Assert
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Create() error = %v, want %v", err, tt.wantErr)
				}
				if rec.puts != 0 {
					t.Errorf("Create() wrote %d times on validation failure, want 0", rec.puts)
				}
				return
			}

			if err != nil {
				t.Fatalf("Create() unexpected error: %v", err)
			}
			want := &model.Item{ID: 1, Name: tt.itemName, Description: tt.description}
			if diff := cmp.Diff(want, created); diff != "" {
				t.Errorf("Create() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPrefsStore_Create_AssignsMaxPlusOne(t *testing.T) {
	// Arrange
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C"} {
		if _, err := s.Create(ctx, name, ""); err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}

	// Deleting a middle item leaves the maximum, so the next ID is 4.
	if _, err := s.Delete(ctx, 2); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	// Act
	created, err := s.Create(ctx, "D", "")

	// Assert
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID != 4 {
		t.Errorf("ID = %d, want 4", created.ID)
	}
}

func TestPrefsStore_List(t *testing.T) {
	// Arrange
	s, _ := newTestStore(t)
	ctx := context.Background()

	empty, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() on empty store error = %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("List() on empty store = %v, want empty non-nil slice", empty)
	}

	_, _ = s.Create(ctx, "A", "first")
	_, _ = s.Create(ctx, "B", "second")
	_, _ = s.Create(ctx, "C", "")

	// Act
	items, err := s.List(ctx)

	// Assert
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []model.Item{
		{ID: 1, Name: "A", Description: "first"},
		{ID: 2, Name: "B", Description: "second"},
		{ID: 3, Name: "C", Description: ""},
	}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
}

func TestPrefsStore_Get(t *testing.T) {
	// Arrange
	s, _ := newTestStore(t)
	ctx := context.Background()
	created, _ := s.Create(ctx, "Test Item", "A test item")

	tests := []struct {
		name    string
		id      int
		wantErr error
	}{
		{name: "existing item", id: created.ID},
		{name: "non-existing item", id: 99, wantErr: ErrNotFound},
		{name: "zero id", id: 0, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			got, err := s.Get(ctx, tt.id)

			// Assert
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Get() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Get() unexpected error: %v", err)
			}
			if diff := cmp.Diff(created, got); diff != "" {
				t.Errorf("Get() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPrefsStore_Update(t *testing.T) {
	tests := []struct {
		name    string
		id      int
		patch   model.ItemPatch
		want    *model.Item
		wantErr error
	}{
		{
			name:  "name only keeps description",
			id:    1,
			patch: model.ItemPatch{Name: strPtr("X")},
			want:  &model.Item{ID: 1, Name: "X", Description: "original"},
		},
		{
			name:  "description only keeps name",
			id:    1,
			patch: model.ItemPatch{Description: strPtr("changed")},
			want:  &model.Item{ID: 1, Name: "A", Description: "changed"},
		},
		{
			name:  "empty patch is a no-op",
			id:    1,
			patch: model.ItemPatch{},
			want:  &model.Item{ID: 1, Name: "A", Description: "original"},
		},
		{
			name:    "empty name rejected",
			id:      1,
			patch:   model.ItemPatch{Name: strPtr("")},
			wantErr: model.ErrEmptyName,
		},
		{
			name:    "missing item",
			id:      42,
			patch:   model.ItemPatch{Name: strPtr("X")},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			s, _ := newTestStore(t)
			ctx := context.Background()
			_, _ = s.Create(ctx, "A", "original")

			// Act
			got, err := s.Update(ctx, tt.id, tt.patch)

			// Assert
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Update() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Update() unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Update() mismatch (-want +got):\n%s", diff)
			}

			stored, _ := s.Get(ctx, tt.id)
			if diff := cmp.Diff(tt.want, stored); diff != "" {
				t.Errorf("stored item mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPrefsStore_Update_PreservesPosition(t *testing.T) {
	// Arrange
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, _ = s.Create(ctx, "A", "")
	_, _ = s.Create(ctx, "B", "")
	_, _ = s.Create(ctx, "C", "")

	// Act
	if _, err := s.Update(ctx, 2, model.ItemPatch{Name: strPtr("B2")}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	// Assert
	items, _ := s.List(ctx)
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	if diff := cmp.Diff([]string{"A", "B2", "C"}, names); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestPrefsStore_Delete(t *testing.T) {
	// Arrange
	s, rec := newTestStore(t)
	ctx := context.Background()
	_, _ = s.Create(ctx, "A", "")
	_, _ = s.Create(ctx, "B", "")
	putsBefore := rec.puts

	// Act
	first, err := s.Delete(ctx, 1)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	second, err := s.Delete(ctx, 1)
	if err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}

	// Assert
	if !first {
		t.Error("first Delete() = false, want true")
	}
	if second {
		t.Error("second Delete() = true, want false")
	}
	if rec.puts != putsBefore+1 {
		t.Errorf("writes = %d, want %d (only the successful delete persists)", rec.puts, putsBefore+1)
	}

	items, _ := s.List(ctx)
	want := []model.Item{{ID: 2, Name: "B"}}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Errorf("List() after delete mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.Get(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() deleted item error = %v, want %v", err, ErrNotFound)
	}
}

func TestPrefsStore_CorruptCollectionIsEmpty(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: "{{{"},
		{name: "object instead of array", raw: `{"id":1}`},
		{name: "json null", raw: "null"},
		{name: "empty string", raw: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			p := prefs.NewMemory()
			ctx := context.Background()
			if err := p.PutString(ctx, DefaultItemsKey, tt.raw); err != nil {
				t.Fatalf("PutString() error = %v", err)
			}
			s := NewPrefsStore(p, DefaultItemsKey, zap.NewNop())

			// Act
			items, err := s.List(ctx)

			// Assert
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(items) != 0 {
				t.Errorf("List() = %v, want empty", items)
			}

			created, err := s.Create(ctx, "fresh", "")
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if created.ID != 1 {
				t.Errorf("Create() ID = %d, want 1", created.ID)
			}
		})
	}
}

func TestPrefsStore_CorruptFileRecovers(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ns.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	p, err := prefs.NewFile(dir, "ns", zap.NewNop())
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	s := NewPrefsStore(p, "", zap.NewNop())
	ctx := context.Background()

	// Act
	items, listErr := s.List(ctx)
	created, createErr := s.Create(ctx, "Fresh", "")

	// Assert
	if listErr != nil || len(items) != 0 {
		t.Fatalf("List() = %v, %v; want empty and no error", items, listErr)
	}
	if createErr != nil || created.ID != 1 {
		t.Fatalf("Create() = %+v, %v; want id 1", created, createErr)
	}
	reopened, _ := prefs.NewFile(dir, "ns", zap.NewNop())
	got, err := NewPrefsStore(reopened, "", zap.NewNop()).List(ctx)
	if err != nil {
		t.Fatalf("List() after reopen error = %v", err)
	}
	if diff := cmp.Diff([]model.Item{{ID: 1, Name: "Fresh"}}, got); diff != "" {
		t.Errorf("List() after reopen mismatch (-want +got):\n%s", diff)
	}
}

func TestPrefsStore_PersistsWholeCollection(t *testing.T) {
	// Arrange
	p := prefs.NewMemory()
	ctx := context.Background()
	s := NewPrefsStore(p, "custom_key", zap.NewNop())

	// Act
	_, _ = s.Create(ctx, "A", "a")
	_, _ = s.Create(ctx, "B", "")

	// Assert
	raw, ok, err := p.GetString(ctx, "custom_key")
	if err != nil || !ok {
		t.Fatalf("GetString() = ok %v, err %v", ok, err)
	}
	want := `[{"id":1,"name":"A","description":"a"},{"id":2,"name":"B","description":""}]`
	if raw != want {
		t.Errorf("persisted = %s, want %s", raw, want)
	}

	reopened := NewPrefsStore(p, "custom_key", zap.NewNop())
	items, _ := reopened.List(ctx)
	if len(items) != 2 {
		t.Errorf("reopened List() len = %d, want 2", len(items))
	}
}

func TestPrefsStore_BackendErrors(t *testing.T) {
	backendErr := errors.New("backend unavailable")

	t.Run("read failure", func(t *testing.T) {
		s, rec := newTestStore(t)
		rec.getErr = backendErr
		ctx := context.Background()

		if _, err := s.List(ctx); !errors.Is(err, backendErr) {
			t.Errorf("List() error = %v, want %v", err, backendErr)
		}
		if _, err := s.Get(ctx, 1); !errors.Is(err, backendErr) {
			t.Errorf("Get() error = %v, want %v", err, backendErr)
		}
		if _, err := s.Delete(ctx, 1); !errors.Is(err, backendErr) {
			t.Errorf("Delete() error = %v, want %v", err, backendErr)
		}
	})

	t.Run("write failure", func(t *testing.T) {
		s, rec := newTestStore(t)
		ctx := context.Background()
		_, _ = s.Create(ctx, "A", "")
		rec.putErr = backendErr

		if _, err := s.Create(ctx, "B", ""); !errors.Is(err, backendErr) {
			t.Errorf("Create() error = %v, want %v", err, backendErr)
		}
		if _, err := s.Update(ctx, 1, model.ItemPatch{Name: strPtr("X")}); !errors.Is(err, backendErr) {
			t.Errorf("Update() error = %v, want %v", err, backendErr)
		}

		rec.putErr = nil
		items, _ := s.List(ctx)
		want := []model.Item{{ID: 1, Name: "A"}}
		if diff := cmp.Diff(want, items); diff != "" {
			t.Errorf("List() after failed writes mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestPrefsStore_Seed(t *testing.T) {
	// Arrange
	s, _ := newTestStore(t)
	ctx := context.Background()

	// Act
	seeded, err := s.Seed(ctx, model.SampleItems())
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	again, err := s.Seed(ctx, []model.Item{{ID: 9, Name: "ignored"}})
	if err != nil {
		t.Fatalf("second Seed() error = %v", err)
	}

	// Assert
	if !seeded {
		t.Error("Seed() on empty store = false, want true")
	}
	if again {
		t.Error("Seed() on non-empty store = true, want false")
	}
	items, _ := s.List(ctx)
	if diff := cmp.Diff(model.SampleItems(), items); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}

	created, _ := s.Create(ctx, "Item 3", "")
	if created.ID != 3 {
		t.Errorf("Create() after seed ID = %d, want 3", created.ID)
	}
}

func TestPrefsStore_ConcurrentCreates(t *testing.T) {
	// Arrange
	s, _ := newTestStore(t)
	ctx := context.Background()
	const n = 50

	// Act
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Create(ctx, "concurrent", "")
		}()
	}
	wg.Wait()

	// Assert
	items, _ := s.List(ctx)
	if len(items) != n {
		t.Fatalf("List() len = %d, want %d (no lost writes)", len(items), n)
	}
	seen := make(map[int]bool, n)
	for _, item := range items {
		if seen[item.ID] {
			t.Errorf("duplicate ID %d", item.ID)
		}
		seen[item.ID] = true
	}
}

func TestPrefsStore_ImplementsStore(t *testing.T) {
	var _ Store = (*PrefsStore)(nil)
}
