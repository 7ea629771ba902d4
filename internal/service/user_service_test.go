package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/internal/domain"
	"chatsync/internal/realtime"
	"chatsync/internal/service"
	"chatsync/internal/store/memory"
)

func TestUserPresence(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	reg := realtime.NewRegistry()
	presence := realtime.NewPresence(reg, st.Users)
	svc := service.NewUserService(st.Users, presence)

	u := &domain.User{Username: "carol"}
	require.NoError(t, st.Users.Create(ctx, u))

	// stale row from an earlier process
	require.NoError(t, st.Users.SetOnlineStatus(ctx, u.ID, true, time.Now().Add(-time.Hour)))
	rec, err := svc.Presence(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, rec.IsOnline)

	reg.Register(realtime.NewEndpoint(u.ID, "", 4))
	presence.Evaluate(ctx, u.ID)
	rec, err = svc.Presence(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, rec.IsOnline)
	assert.Len(t, svc.ListOnline(), 1)

	_, err = svc.Presence(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
