package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ball-and-four/newwons/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, nil), mock
}

func TestMigrate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS documents").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdd(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(queryInsert)).
		WithArgs("calendar", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	handle, err := store.Add(context.Background(), "calendar", storage.Fields{"id": "e1"})
	require.NoError(t, err)
	assert.NotEmpty(t, handle)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdd_BackendFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(queryInsert)).
		WillReturnError(errors.New("connection refused"))

	_, err := store.Add(context.Background(), "calendar", storage.Fields{"id": "e1"})
	assert.ErrorIs(t, err, storage.ErrStorageUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"doc_id", "data"}).
		AddRow("h1", []byte(`{"id":"e1","title":"Standup","allDay":false}`)).
		AddRow("h2", []byte(`not json`)).
		AddRow("h3", []byte(`{"title":"no id"}`))
	mock.ExpectQuery(regexp.QuoteMeta(queryList)).
		WithArgs("calendar").
		WillReturnRows(rows)

	docs, err := store.List(context.Background(), "calendar")
	require.NoError(t, err)
	require.Len(t, docs, 2, "undecodable rows are skipped")
	assert.Equal(t, "h1", docs[0].Handle)
	assert.Equal(t, "Standup", docs[0].Fields.String("title"))
	assert.False(t, docs[0].Fields.Bool("allDay"))
	assert.Equal(t, "h3", docs[1].Handle)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantErr error
		want    storage.Fields
	}{
		{
			name: "found",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(queryGet)).
					WithArgs("userColors", "list").
					WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"bob":"#ff0000"}`)))
			},
			want: storage.Fields{"bob": "#ff0000"},
		},
		{
			name: "missing",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(queryGet)).
					WithArgs("userColors", "list").
					WillReturnRows(sqlmock.NewRows([]string{"data"}))
			},
			wantErr: storage.ErrNotFound,
		},
		{
			name: "backend failure",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(queryGet)).
					WillReturnError(errors.New("timeout"))
			},
			wantErr: storage.ErrStorageUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tt.setup(mock)

			doc, err := store.Get(context.Background(), "userColors", "list")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, doc.Fields)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUpdate(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta(queryMerge)).
		WithArgs("calendar", "h1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(queryMerge)).
		WithArgs("calendar", "gone", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Update(ctx, "calendar", "h1", storage.Fields{"start": "2024-01-01"}))
	assert.ErrorIs(t, store.Update(ctx, "calendar", "gone", storage.Fields{"start": "2024-01-01"}), storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSet(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta(queryUpmerge)).
		WithArgs("userColors", "list", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(queryUpsert)).
		WithArgs("userColors", "list", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Set(ctx, "userColors", "list", storage.Fields{"bob": "#ff0000"}, true))
	require.NoError(t, store.Set(ctx, "userColors", "list", storage.Fields{"bob": "#ff0000"}, false))
	assert.ErrorIs(t, store.Set(ctx, "userColors", "", storage.Fields{}, true), storage.ErrInvalidInput)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta(queryDelete)).
		WithArgs("calendar", "h1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(queryDelete)).
		WithArgs("calendar", "h1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Delete(ctx, "calendar", "h1"))
	assert.ErrorIs(t, store.Delete(ctx, "calendar", "h1"), storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
