package repo

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/thirdparty/entity"
)

func newMock(t *testing.T) (*AccountRepo, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return NewAccountRepo(sqlx.NewDb(raw, "postgres")), mock
}

func TestCreateAccountConstraints(t *testing.T) {
	cases := map[string]string{
		"uq_third_party_identity":      store.FieldProviderIdentity,
		"uq_third_party_user_provider": store.FieldProviderSlot,
	}
	for constraint, field := range cases {
		t.Run(constraint, func(t *testing.T) {
			r, mock := newMock(t)
			mock.ExpectExec("INSERT INTO third_party_accounts").
				WillReturnError(&pq.Error{Code: "23505", Constraint: constraint})

			err := r.CreateAccount(context.Background(), &entity.Account{ID: 1, UserID: 2, Provider: entity.ProviderWechat, ProviderUserID: "o1"})
			got, ok := store.IsUnique(err)
			require.True(t, ok)
			assert.Equal(t, field, got)
		})
	}
}

func TestCountOtherAccounts(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM third_party_accounts WHERE user_id=\$1 AND id <> \$2`).
		WithArgs(int64(2), int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	n, err := r.CountOtherAccounts(context.Background(), 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnbindAccount(t *testing.T) {
	r, mock := newMock(t)
	at := time.Now()
	mock.ExpectExec("UPDATE third_party_accounts SET is_bound=false, is_deleted=true").
		WithArgs(int64(10), at).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE third_party_accounts").
		WithArgs(int64(10), at).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, r.UnbindAccount(context.Background(), 10, at))
	assert.ErrorIs(t, r.UnbindAccount(context.Background(), 10, at), store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindAccountNotFound(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectQuery(`WHERE provider=\$1 AND provider_user_id=\$2 AND is_deleted = false`).
		WithArgs(entity.ProviderApple, "sub").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := r.FindAccount(context.Background(), entity.ProviderApple, "sub")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
