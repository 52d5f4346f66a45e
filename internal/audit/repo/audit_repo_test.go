package repo

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/audit/entity"
)

func TestAppendLoginHistoryWithoutUser(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()

	at := time.Now()
	reason := "invalid credentials"
	mock.ExpectExec("INSERT INTO login_history").
		WithArgs("2ksuid", nil, "password", false, &reason, nil, nil, nil, nil, nil, nil, nil, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := NewAuditRepo(sqlx.NewDb(raw, "postgres"))
	err = r.AppendLoginHistory(context.Background(), &entity.LoginHistory{
		ID: "2ksuid", LoginType: "password", FailReason: &reason, LoginAt: at,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendSecurityLog(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()

	mock.ExpectExec("INSERT INTO security_logs").WillReturnResult(sqlmock.NewResult(0, 1))

	uid := int64(7)
	r := NewAuditRepo(sqlx.NewDb(raw, "postgres"))
	require.NoError(t, r.AppendSecurityLog(context.Background(), &entity.SecurityLog{
		ID: "2ksuid", UserID: &uid, EventType: entity.EventPasswordReset, IsSuccess: true, CreatedAt: time.Now(),
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
