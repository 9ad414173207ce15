package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var taskCols = []string{"id", "title", "description", "status", "due_date", "created_by", "organization_id",
	"created_at", "updated_at", "first_name", "middle_name", "last_name", "email"}

var assigneeCols = []string{"task_id", "id", "first_name", "middle_name", "last_name", "email"}

func newMock(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPGStore(db), mock
}

func TestCreateRollsBackWhenAssigneeOutsideOrganization(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into tasks").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into task_assignees").
		WithArgs(sqlmock.AnyArg(), `{"u1","u2"}`, "acme").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	_, err := store.Create(context.Background(),
		&Task{Title: "T", Status: StatusPending, CreatedBy: "u1", OrganizationID: "acme"}, []string{"u1", "u2", "u1"})
	assert.ErrorIs(t, err, ErrAssigneeNotMember)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReturnsStoredTaskWithAssignees(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("insert into tasks").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into task_assignees").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("from tasks t left join users c").
		WithArgs("t1", "acme").
		WillReturnRows(sqlmock.NewRows(taskCols).
			AddRow("t1", "T", "", "Pending", nil, "u1", "acme", now, now, "Ada", "", "Lovelace", "ada@acme.io"))
	mock.ExpectQuery("from task_assignees ta join users u").
		WithArgs(`{"t1"}`).
		WillReturnRows(sqlmock.NewRows(assigneeCols).AddRow("t1", "u2", "Bob", "", "Builder", "bob@acme.io"))

	task, err := store.Create(context.Background(),
		&Task{ID: "t1", Title: "T", Status: StatusPending, CreatedBy: "u1", OrganizationID: "acme"}, []string{"u2"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, task.Status)
	assert.Nil(t, task.DueDate)
	require.NotNil(t, task.Creator)
	assert.Equal(t, "Ada Lovelace", task.Creator.FullName)
	assert.Equal(t, []string{"u2"}, task.AssigneeIDs())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetScopesByOrganization(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("where t.id = \\$1 and t.organization_id = \\$2").
		WithArgs("t1", "globex").
		WillReturnRows(sqlmock.NewRows(taskCols))

	_, err := store.Get(context.Background(), "globex", "t1")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListCountsThenPages(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery("select count\\(\\*\\) from tasks t where t.organization_id = \\$1 and t.status = \\$2 and exists").
		WithArgs("acme", "Completed", "u2").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery("order by t.created_at desc, t.id desc limit \\$4 offset \\$5").
		WithArgs("acme", "Completed", "u2", 5, 5).
		WillReturnRows(sqlmock.NewRows(taskCols).
			AddRow("t6", "Six", "", "Completed", now, "u1", "acme", now, now, "", "", "", "").
			AddRow("t7", "Seven", "d", "Completed", nil, "", "acme", now, now, "", "", "", ""))
	mock.ExpectQuery("from task_assignees").
		WillReturnRows(sqlmock.NewRows(assigneeCols).
			AddRow("t6", "u2", "Bob", "", "Builder", "bob@acme.io").
			AddRow("t7", "u2", "Bob", "", "Builder", "bob@acme.io"))

	list, total, err := store.List(context.Background(), "acme",
		Filter{Status: StatusCompleted, AssigneeID: "u2", Page: 2, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	require.Len(t, list, 2)
	assert.NotNil(t, list[0].DueDate)
	assert.Nil(t, list[1].Creator)
	assert.True(t, list[1].IsAssigned("u2"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListSkipsPageQueryPastTheEnd(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("select count").WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	list, total, err := store.List(context.Background(), "acme", Filter{Page: 4, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, list)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateWithoutAssigneesLeavesLinks(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("update tasks set title").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("from tasks t").
		WillReturnRows(sqlmock.NewRows(taskCols).
			AddRow("t1", "New", "", "In Progress", nil, "u1", "acme", now, now, "", "", "", ""))
	mock.ExpectQuery("from task_assignees").WillReturnRows(sqlmock.NewRows(assigneeCols))

	task, err := store.Update(context.Background(),
		&Task{ID: "t1", Title: "New", Status: StatusInProgress, OrganizationID: "acme"}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, task.Status)
	assert.Empty(t, task.Assignees)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateReplacesAssignees(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("update tasks set title").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from task_assignees").WithArgs("t1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()
	mock.ExpectQuery("from tasks t").
		WillReturnRows(sqlmock.NewRows(taskCols).
			AddRow("t1", "T", "", "Pending", nil, "u1", "acme", now, now, "", "", "", ""))
	mock.ExpectQuery("from task_assignees").WillReturnRows(sqlmock.NewRows(assigneeCols))

	_, err := store.Update(context.Background(),
		&Task{ID: "t1", Title: "T", Status: StatusPending, OrganizationID: "acme"}, []string{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingTask(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("delete from tasks").WithArgs("t1", "acme").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, store.Delete(context.Background(), "acme", "t1"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsSingleQuery(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("count\\(\\*\\) filter").WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"total", "pending", "in_progress", "completed"}).AddRow(6, 1, 2, 3))

	st, err := store.Stats(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 6, Pending: 1, InProgress: 2, Completed: 3}, st)
	require.NoError(t, mock.ExpectationsWereMet())
}
