package store_test

import (
	"errors"
	"testing"

	"github.com/vsariola/beatbox"
	"github.com/vsariola/beatbox/store"
)

func TestTableCRUD(t *testing.T) {
	repo := store.NewPlayerTable().Repository()
	saved, err := repo.Save(beatbox.Player{Name: "kick", Rules: []beatbox.Rule{{ID: 1}}})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if saved.ID != 1 {
		t.Errorf("first record got id %d, expected 1", saved.ID)
	}
	saved.Rules[0].Value = 99 // must not leak into the table
	found, err := repo.FindByID(1)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found.Name != "kick" || found.Rules[0].Value != 0 {
		t.Errorf("found %+v", found)
	}
	if _, err := repo.Save(beatbox.Player{ID: 10}); err != nil {
		t.Fatalf("Save with an explicit id failed: %v", err)
	}
	if next, _ := repo.Save(beatbox.Player{}); next.ID != 11 {
		t.Errorf("record saved after id 10 got id %d, expected 11", next.ID)
	}
	if err := repo.Delete(1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := repo.FindByID(1); !errors.Is(err, beatbox.ErrNotFound) {
		t.Errorf("FindByID of a deleted record returned %v, expected ErrNotFound", err)
	}
	if err := repo.Delete(1); !errors.Is(err, beatbox.ErrNotFound) {
		t.Errorf("second Delete returned %v, expected ErrNotFound", err)
	}
}

func TestTableAllIsOrdered(t *testing.T) {
	table := store.NewSessionTable()
	for _, id := range []int64{5, 2, 9} {
		if _, err := table.Save(beatbox.SessionConfig{ID: id}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	all := table.All()
	if len(all) != 3 || all[0].ID != 2 || all[1].ID != 5 || all[2].ID != 9 {
		t.Errorf("All returned %+v", all)
	}
}
