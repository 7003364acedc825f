package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"
)

type testData struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestStorage_PutAndGet(t *testing.T) {
	tmpDir := t.TempDir()
	s := NewOS(tmpDir)
	ctx := context.Background()

	data := testData{ID: "123", Name: "test", Value: 42}

	// Put data
	err := s.Put(ctx, []string{"items", "item1"}, data)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Verify file exists
	filePath := filepath.Join(tmpDir, "items", "item1.json")
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		t.Fatal("File was not created")
	}

	// Get data
	var retrieved testData
	err = s.Get(ctx, []string{"items", "item1"}, &retrieved)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if retrieved != data {
		t.Errorf("Data mismatch: got %+v, want %+v", retrieved, data)
	}
}

func TestStorage_GetNotFound(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	var data testData
	err := s.Get(ctx, []string{"nonexistent", "item"}, &data)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestStorage_CancelledContext(t *testing.T) {
	s := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Put(ctx, []string{"items", "x"}, testData{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
}

func TestStorage_Delete(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	data := testData{ID: "123", Name: "test", Value: 42}

	// Put then delete
	if err := s.Put(ctx, []string{"items", "toDelete"}, data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Delete(ctx, []string{"items", "toDelete"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// Verify deleted
	var retrieved testData
	err := s.Get(ctx, []string{"items", "toDelete"}, &retrieved)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got: %v", err)
	}
}

func TestStorage_DeleteNonexistent(t *testing.T) {
	s := NewMemory()

	// Deleting nonexistent should not error
	if err := s.Delete(context.Background(), []string{"nonexistent", "item"}); err != nil {
		t.Errorf("Delete of nonexistent item should not error: %v", err)
	}
}

func TestStorage_Create(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if err := s.Create(ctx, []string{"lists", "u1", "dinners"}, testData{ID: "a"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	err := s.Create(ctx, []string{"lists", "u1", "dinners"}, testData{ID: "b"})
	if !errors.Is(err, ErrExists) {
		t.Fatalf("Expected ErrExists, got: %v", err)
	}

	var got testData
	if err := s.Get(ctx, []string{"lists", "u1", "dinners"}, &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != "a" {
		t.Errorf("Create overwrote existing value: %+v", got)
	}
}

func TestStorage_Update(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	path := []string{"counters", "c"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(ctx, path, func(current json.RawMessage) (any, error) {
				var d testData
				if current != nil {
					if err := json.Unmarshal(current, &d); err != nil {
						return nil, err
					}
				}
				d.Value++
				return d, nil
			})
			if err != nil {
				t.Errorf("Update failed: %v", err)
			}
		}()
	}
	wg.Wait()

	var got testData
	if err := s.Get(ctx, path, &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Value != 20 {
		t.Errorf("Expected 20 serialized increments, got %d", got.Value)
	}
	if n := s.locks.Len(); n != 0 {
		t.Errorf("Expected lock table to drain, got %d", n)
	}
}

func TestStorage_UpdateError(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, []string{"items", "x"}, func(current json.RawMessage) (any, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected fn error, got: %v", err)
	}
	if s.Exists(ctx, []string{"items", "x"}) {
		t.Error("Failed update must not write")
	}
}

func TestStorage_List(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	// Create multiple items
	for i := 0; i < 3; i++ {
		data := testData{ID: string(rune('c' - i)), Name: "test", Value: i}
		if err := s.Put(ctx, []string{"items", data.ID}, data); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	items, err := s.List(ctx, []string{"items"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	want := []string{"a", "b", "c"}
	if len(items) != len(want) {
		t.Fatalf("Expected %v, got %v", want, items)
	}
	for i := range want {
		if items[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, items)
		}
	}
}

func TestStorage_ListEmpty(t *testing.T) {
	s := NewMemory()

	items, err := s.List(context.Background(), []string{"nonexistent"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected empty list, got: %v", items)
	}
}

func TestStorage_Scan(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	expected := map[string]testData{
		"a": {ID: "a", Name: "first", Value: 1},
		"b": {ID: "b", Name: "second", Value: 2},
		"c": {ID: "c", Name: "third", Value: 3},
	}
	for id, data := range expected {
		if err := s.Put(ctx, []string{"items", id}, data); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	scanned := make(map[string]testData)
	err := s.Scan(ctx, []string{"items"}, func(key string, data json.RawMessage) error {
		var item testData
		if err := json.Unmarshal(data, &item); err != nil {
			return err
		}
		scanned[key] = item
		return nil
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(scanned) != len(expected) {
		t.Errorf("Expected %d items, got %d", len(expected), len(scanned))
	}
	for id, exp := range expected {
		if got, ok := scanned[id]; !ok || got != exp {
			t.Errorf("Mismatch for %s: got %+v, want %+v", id, got, exp)
		}
	}
}

func TestStorage_Exists(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if s.Exists(ctx, []string{"items", "test"}) {
		t.Error("Item should not exist")
	}
	if err := s.Put(ctx, []string{"items", "test"}, testData{ID: "test"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !s.Exists(ctx, []string{"items", "test"}) {
		t.Error("Item should exist")
	}
}

func TestStorage_ConcurrentAccess(t *testing.T) {
	s := NewOS(t.TempDir())
	ctx := context.Background()

	// Concurrent writes to the same key
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(val int) {
			defer wg.Done()
			data := testData{ID: "concurrent", Name: "test", Value: val}
			if err := s.Put(ctx, []string{"items", "concurrent"}, data); err != nil {
				t.Errorf("Concurrent Put failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	var retrieved testData
	if err := s.Get(ctx, []string{"items", "concurrent"}, &retrieved); err != nil {
		t.Fatalf("Get after concurrent writes failed: %v", err)
	}
}

func TestStorage_AtomicWrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, "/data")
	ctx := context.Background()

	if err := s.Put(ctx, []string{"items", "atomic"}, testData{ID: "atomic"}); err != nil {
		t.Fatalf("Initial Put failed: %v", err)
	}

	// Verify no .tmp file exists after write
	if ok, _ := afero.Exists(fs, "/data/items/atomic.json.tmp"); ok {
		t.Error("Temp file should not exist after successful write")
	}
	if ok, _ := afero.Exists(fs, "/data/items/atomic.json"); !ok {
		t.Error("Document should exist after write")
	}
}
