package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/appetiteclub/apt"
)

type doc struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "terminal.db"), apt.NewNoopLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { s.Stop(context.Background()) })
	return s
}

func TestStorePutGetAll(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Put(ctx, CollectionMenuItems, "b", doc{ID: "b", Name: "Wine"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Put(ctx, CollectionMenuItems, "a", doc{ID: "a", Name: "Beer"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var docs []doc
	if err := s.GetAll(ctx, CollectionMenuItems, &docs); err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("docs = %d, want 2", len(docs))
	}
	// Scan order follows ids.
	if docs[0].Name != "Beer" || docs[1].Name != "Wine" {
		t.Errorf("docs out of id order: %+v", docs)
	}
}

func TestStorePutOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Put(ctx, CollectionMenuItems, "a", doc{ID: "a", Name: "Beer"})
	if err := s.Put(ctx, CollectionMenuItems, "a", doc{ID: "a", Name: "Lager"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var docs []doc
	s.GetAll(ctx, CollectionMenuItems, &docs)
	if len(docs) != 1 || docs[0].Name != "Lager" {
		t.Errorf("docs = %+v, want the single overwritten record", docs)
	}
}

func TestStoreCollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Put(ctx, CollectionMenuItems, "a", doc{ID: "a", Name: "Beer"})
	s.Put(ctx, CollectionUsers, "a", doc{ID: "a", Name: "ana"})

	var items []doc
	s.GetAll(ctx, CollectionMenuItems, &items)
	if len(items) != 1 || items[0].Name != "Beer" {
		t.Errorf("items = %+v", items)
	}

	if err := s.Delete(ctx, CollectionMenuItems, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	var users []doc
	s.GetAll(ctx, CollectionUsers, &users)
	if len(users) != 1 {
		t.Error("deleting in one collection must not touch another")
	}
}

func TestStoreReplaceAll(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Put(ctx, CollectionMenuItems, "old", doc{ID: "old", Name: "Stale"})

	fresh := []Record{
		{ID: "a", Value: doc{ID: "a", Name: "Beer"}},
		{ID: "b", Value: doc{ID: "b", Name: "Wine"}},
	}
	if err := s.ReplaceAll(ctx, CollectionMenuItems, fresh); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}

	var docs []doc
	s.GetAll(ctx, CollectionMenuItems, &docs)
	if len(docs) != 2 {
		t.Fatalf("docs = %d, want the stale record gone", len(docs))
	}
	for _, d := range docs {
		if d.Name == "Stale" {
			t.Error("ReplaceAll left a stale record behind")
		}
	}
}

func TestStoreGetAllEmptyCollection(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var docs []doc
	if err := s.GetAll(ctx, CollectionSales, &docs); err != nil {
		t.Fatalf("GetAll() on empty collection error = %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("docs = %d, want 0", len(docs))
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "terminal.db")

	s := NewStore(path, apt.NewNoopLogger())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Put(ctx, CollectionSales, "s1", doc{ID: "s1", Name: "Sale"})
	s.PutSetting(ctx, SettingTaxRate, 0.21)
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	reopened := NewStore(path, apt.NewNoopLogger())
	if err := reopened.Start(ctx); err != nil {
		t.Fatalf("reopen Start() error = %v", err)
	}
	defer reopened.Stop(ctx)

	var docs []doc
	reopened.GetAll(ctx, CollectionSales, &docs)
	if len(docs) != 1 {
		t.Error("records must survive a process restart")
	}
	var rate float64
	found, err := reopened.GetSetting(ctx, SettingTaxRate, &rate)
	if err != nil || !found || rate != 0.21 {
		t.Errorf("setting after reopen: found=%v rate=%v err=%v", found, rate, err)
	}
}

func TestStoreSettings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var count int
	found, err := s.GetSetting(ctx, SettingTableCount, &count)
	if err != nil {
		t.Fatalf("GetSetting() error = %v", err)
	}
	if found {
		t.Error("absent setting should report not found")
	}

	if err := s.PutSetting(ctx, SettingTableCount, 15); err != nil {
		t.Fatalf("PutSetting() error = %v", err)
	}
	found, err = s.GetSetting(ctx, SettingTableCount, &count)
	if err != nil || !found || count != 15 {
		t.Errorf("setting roundtrip: found=%v count=%d err=%v", found, count, err)
	}

	// Overwrite wins.
	s.PutSetting(ctx, SettingTableCount, 20)
	s.GetSetting(ctx, SettingTableCount, &count)
	if count != 20 {
		t.Errorf("count = %d, want 20", count)
	}
}

func TestStoreGetSettingMalformedFallsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// A string cached where a number is expected must not crash the load.
	s.PutSetting(ctx, SettingTaxRate, "not-a-number")

	rate := 0.21
	found, err := s.GetSetting(ctx, SettingTaxRate, &rate)
	if err != nil {
		t.Fatalf("GetSetting() error = %v", err)
	}
	if found {
		t.Error("malformed setting should report not found so defaults apply")
	}
	if rate != 0.21 {
		t.Errorf("rate = %v, out must be untouched on fallback", rate)
	}
}
