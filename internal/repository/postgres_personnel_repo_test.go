package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/hitoshi/fleetman/internal/scope"
)

func personnelColumns() []string {
	return []string{"id", "work_area_id", "name", "role", "email", "is_active", "created_at", "updated_at"}
}

func TestPersonnelRepo_ListByScope_Restricted_FiltersByWorkArea(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresPersonnelRepo(db)

	now := time.Now()
	mock.ExpectQuery(`FROM personnel WHERE work_area_id = ANY\(\$1\) ORDER BY name`).
		WithArgs(pq.Array([]int64{5, 8})).
		WillReturnRows(sqlmock.NewRows(personnelColumns()).
			AddRow("pers-1", int64(5), "佐藤一郎", "現場監督", "sato@example.com", true, now, now))

	list, err := repo.ListByScope(context.Background(), scope.Restricted([]int64{8, 5}))
	if err != nil {
		t.Fatalf("ListByScope failed: %v", err)
	}
	if len(list) != 1 || list[0].WorkAreaID != 5 {
		t.Errorf("list = %+v", list)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPersonnelRepo_ListByScope_EmptyScope_NoQuery(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresPersonnelRepo(db)

	list, err := repo.ListByScope(context.Background(), scope.Restricted(nil))
	if err != nil {
		t.Fatalf("ListByScope failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("len(list) = %d, want 0", len(list))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no query should have been issued: %v", err)
	}
}

func TestPersonnelRepo_FindByID_NotFound_ReturnsNil(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresPersonnelRepo(db)

	mock.ExpectQuery(`FROM personnel WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(personnelColumns()))

	p, err := repo.FindByID(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("FindByID should not fail on missing row: %v", err)
	}
	if p != nil {
		t.Errorf("p = %+v, want nil", p)
	}
}
