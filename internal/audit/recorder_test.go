package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/audit/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store/memstore"
)

func TestRecorderWritesRows(t *testing.T) {
	ms := memstore.New()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	r := NewRecorder(ms, zap.NewNop().Sugar(), func() time.Time { return at })
	ctx := context.Background()

	r.LoginSucceeded(ctx, 7, "password", Device{DeviceID: "d1", IPAddress: "10.0.0.1"})
	r.LoginFailed(ctx, nil, "password", "user not found", Device{})
	r.Security(ctx, 7, entity.EventPasswordChange, "changed")

	hist := ms.LoginHistory()
	require.Len(t, hist, 2)
	assert.Equal(t, int64(7), *hist[0].UserID)
	assert.True(t, hist[0].IsSuccess)
	assert.Equal(t, "d1", *hist[0].DeviceID)
	assert.Nil(t, hist[0].DeviceType)
	assert.Equal(t, at, hist[0].LoginAt)
	assert.Len(t, hist[0].ID, 27)
	assert.Nil(t, hist[1].UserID)
	assert.Equal(t, "user not found", *hist[1].FailReason)

	logs := ms.SecurityLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, entity.EventPasswordChange, logs[0].EventType)
	assert.True(t, logs[0].IsSuccess)
}

func TestRecorderSwallowsFailures(t *testing.T) {
	ms := memstore.New()
	ms.FailOn("AppendLoginHistory", errors.New("disk full"))
	ms.FailOn("AppendSecurityLog", errors.New("disk full"))
	core, logs := observer.New(zap.WarnLevel)
	r := NewRecorder(ms, zap.New(core).Sugar(), nil)

	assert.NotPanics(t, func() {
		r.LoginSucceeded(context.Background(), 1, "password", Device{})
		r.Security(context.Background(), 1, entity.EventPasswordReset, "")
	})
	assert.Equal(t, 2, logs.Len())
	assert.Equal(t, 0, ms.Counts().LoginHistory)
}
