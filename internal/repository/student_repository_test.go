package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStudentRepositoryGetOrCreateExisting(t *testing.T) {
	db, mock, cleanup := newResponseMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "email", "template_id", "created_at"}).
		AddRow("anon-1", "sam@school.edu", "tmpl-1", time.Now())
	mock.ExpectQuery("SELECT id, email, template_id, created_at").
		WithArgs("sam@school.edu", "tmpl-1").
		WillReturnRows(rows)

	student, err := repo.GetOrCreate(context.Background(), "  Sam@School.EDU ", "tmpl-1")
	require.NoError(t, err)
	assert.Equal(t, "anon-1", student.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryGetOrCreateInserts(t *testing.T) {
	db, mock, cleanup := newResponseMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery("SELECT id, email, template_id, created_at").
		WithArgs("sam@school.edu", "tmpl-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "template_id", "created_at"}))
	mock.ExpectExec("INSERT INTO anonymous_students").
		WithArgs(sqlmock.AnyArg(), "sam@school.edu", "tmpl-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT id, email, template_id, created_at").
		WithArgs("sam@school.edu", "tmpl-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "template_id", "created_at"}).
			AddRow("anon-1", "sam@school.edu", "tmpl-1", time.Now()))

	student, err := repo.GetOrCreate(context.Background(), "sam@school.edu", "tmpl-1")
	require.NoError(t, err)
	assert.Equal(t, "anon-1", student.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
