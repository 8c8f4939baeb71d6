package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/biomed-platform-security/internal/repository"
)

func TestMembershipRepository_GroupsFor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewMembershipRepository(mock)

	rows := pgxmock.NewRows([]string{"group_id"}).AddRow(-2).AddRow(10).AddRow(15)
	mock.ExpectQuery(`SELECT group_id FROM sec\.memberships`).
		WithArgs(7).
		WillReturnRows(rows)

	groups, err := repo.GroupsFor(context.Background(), 7)
	if err != nil {
		t.Fatalf("GroupsFor returned error: %v", err)
	}
	if len(groups) != 3 || groups[0] != -2 || groups[2] != 15 {
		t.Fatalf("unexpected group list: %v", groups)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMembershipRepository_AddDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewMembershipRepository(mock)

	mock.ExpectExec(`INSERT INTO sec\.memberships`).
		WithArgs(10, 7).
		WillReturnError(&pgconn.PgError{Code: uniqueViolationCode})

	if err := repo.Add(context.Background(), 10, 7); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestMembershipRepository_RemoveAbsent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewMembershipRepository(mock)

	mock.ExpectExec(`DELETE FROM sec\.memberships`).
		WithArgs(10, 7).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.Remove(context.Background(), 10, 7); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMembershipRepository_RemoveAllFor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewMembershipRepository(mock)

	mock.ExpectQuery(`SELECT member_id FROM sec\.memberships`).
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"member_id"}).AddRow(3).AddRow(7))
	mock.ExpectExec(`DELETE FROM sec\.memberships`).
		WithArgs(10, 10).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	members, err := repo.RemoveAllFor(context.Background(), 10)
	if err != nil {
		t.Fatalf("RemoveAllFor returned error: %v", err)
	}
	if len(members) != 2 || members[0] != 3 || members[1] != 7 {
		t.Fatalf("unexpected former members: %v", members)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
