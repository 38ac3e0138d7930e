// Package sqlitetest opens throwaway SQLite stores seeded with a small
// circus catalog for tests across packages.
package sqlitetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/catalog"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/user"
	"github.com/Keldarne/cirque-app-sub003/internal/infrastructure/persistence/sqlite"
	"github.com/Keldarne/cirque-app-sub003/pkg/logger"
)

// Fixture ids.
const (
	Silks    int64 = 1
	Juggling int64 = 2

	Climb   int64 = 10
	Cascade int64 = 20

	// ClimbBase is required, threshold 3, 10 XP.
	ClimbBase int64 = 101
	// ClimbLeft is required, left side, threshold 5, 20 XP.
	ClimbLeft int64 = 102
	// ClimbRight is required, right side, threshold 5, 20 XP.
	ClimbRight int64 = 103
	// CascadeThree is required, threshold 2, 15 XP.
	CascadeThree int64 = 201
	// CascadeFive is optional, threshold 2, 5 XP.
	CascadeFive int64 = 202

	Alice int64 = 1
	Bob   int64 = 2
	Chloe int64 = 3

	// Troupe holds Alice and Chloe.
	Troupe int64 = 7

	Progression int64 = 1
)

// Epoch is the creation time of Alice; Bob and Chloe follow a month apart.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Open returns an empty migrated store closed at test cleanup.
func Open(t testing.TB) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "cirque.db"), logger.Nop())
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close sqlite store: %v", err)
		}
	})
	return store
}

// OpenSeeded returns a store holding the fixture catalog, users and group.
func OpenSeeded(t testing.TB) *sqlite.Store {
	t.Helper()
	store := Open(t)
	if err := Seed(context.Background(), store); err != nil {
		t.Fatalf("seed sqlite store: %v", err)
	}
	return store
}

// Seed writes the fixture rows.
func Seed(ctx context.Context, store *sqlite.Store) error {
	for _, d := range []catalog.Discipline{{ID: Silks, Name: "Aerial silks"}, {ID: Juggling, Name: "Juggling"}} {
		if err := store.CreateDiscipline(ctx, d); err != nil {
			return err
		}
	}
	figures := []catalog.Figure{
		{ID: Climb, DisciplineID: Silks, Name: "Climb", Steps: []catalog.Step{
			{ID: ClimbBase, Order: 1, CriticalFailureThreshold: 3, XPReward: 10, Side: catalog.SideNone, Required: true},
			{ID: ClimbLeft, Order: 2, CriticalFailureThreshold: 5, XPReward: 20, Side: catalog.SideLeft, Required: true},
			{ID: ClimbRight, Order: 3, CriticalFailureThreshold: 5, XPReward: 20, Side: catalog.SideRight, Required: true},
		}},
		{ID: Cascade, DisciplineID: Juggling, Name: "Three ball cascade", Steps: []catalog.Step{
			{ID: CascadeThree, Order: 1, CriticalFailureThreshold: 2, XPReward: 15, Side: catalog.SideNone, Required: true},
			{ID: CascadeFive, Order: 2, CriticalFailureThreshold: 2, XPReward: 5, Side: catalog.SideNone},
		}},
	}
	for _, f := range figures {
		if err := store.CreateFigure(ctx, f); err != nil {
			return err
		}
	}
	users := []user.User{
		{ID: Alice, DisplayName: "Alice", Role: user.RoleStudent, CreatedAt: Epoch},
		{ID: Bob, DisplayName: "Bob", Role: user.RoleStudent, CreatedAt: Epoch.AddDate(0, 1, 0)},
		{ID: Chloe, DisplayName: "Chloe", Role: user.RoleStudent, CreatedAt: Epoch.AddDate(0, 2, 0)},
	}
	for _, u := range users {
		if err := store.CreateUser(ctx, u); err != nil {
			return err
		}
	}
	if err := store.CreateGroup(ctx, Troupe, "Troupe"); err != nil {
		return err
	}
	for _, id := range []int64{Alice, Chloe} {
		if err := store.AddGroupMember(ctx, Troupe, id); err != nil {
			return err
		}
	}
	return nil
}
