package channels

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidhub/internal/domain/apperr"
	"vidhub/internal/domain/models"
	"vidhub/internal/lib/logger/handlers/slogdiscard"
	"vidhub/internal/storage/sqlite"
)

func newTestService(t *testing.T) (*Channels, *sqlite.Storage) {
	t.Helper()

	st, err := sqlite.New(filepath.Join(t.TempDir(), "channels.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	return New(slogdiscard.NewDiscardLogger(), st, st, st, st), st
}

func saveUser(t *testing.T, st *sqlite.Storage) *models.User {
	t.Helper()

	u, err := st.SaveUser(context.Background(), models.NewUser{
		Username:  strings.ToLower(gofakeit.Username()) + gofakeit.DigitN(6),
		Email:     strings.ToLower(gofakeit.Email()),
		FullName:  gofakeit.Name(),
		AvatarURL: gofakeit.URL(),
		PassHash:  []byte("hash"),
	})
	require.NoError(t, err)

	return u
}

func TestChannelProfile(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)

	channel := saveUser(t, st)
	subscribers := []*models.User{saveUser(t, st), saveUser(t, st), saveUser(t, st)}
	for _, sub := range subscribers {
		require.NoError(t, svc.Subscribe(ctx, sub.ID, channel.ID))
	}
	stranger := saveUser(t, st)

	tests := []struct {
		name         string
		viewerID     string
		isSubscribed bool
	}{
		{name: "Subscriber", viewerID: subscribers[0].ID, isSubscribed: true},
		{name: "Stranger", viewerID: stranger.ID, isSubscribed: false},
		{name: "Anonymous", viewerID: "", isSubscribed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := svc.ChannelProfile(ctx, tt.viewerID, "  "+strings.ToUpper(channel.Username))
			require.NoError(t, err)

			assert.Equal(t, channel.ID, profile.ID)
			assert.EqualValues(t, 3, profile.SubscriberCount)
			assert.EqualValues(t, 0, profile.ChannelsSubscribedToCount)
			assert.Equal(t, tt.isSubscribed, profile.IsSubscribed)
		})
	}
}

func TestChannelProfile_FailCases(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ChannelProfile(context.Background(), "", "   ")
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.ChannelProfile(context.Background(), "", "nobody")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSubscribe_FailCases(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)

	a := saveUser(t, st)
	b := saveUser(t, st)
	require.NoError(t, svc.Subscribe(ctx, a.ID, b.ID))

	tests := []struct {
		name         string
		subscriberID string
		channelID    string
		expectedErr  error
	}{
		{name: "Own channel", subscriberID: a.ID, channelID: a.ID, expectedErr: apperr.ErrValidation},
		{name: "Missing channel", subscriberID: a.ID, channelID: "missing", expectedErr: apperr.ErrNotFound},
		{name: "Missing subscriber", subscriberID: "ghost-user-id", channelID: b.ID, expectedErr: apperr.ErrNotFound},
		{name: "Already subscribed", subscriberID: a.ID, channelID: b.ID, expectedErr: apperr.ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Subscribe(ctx, tt.subscriberID, tt.channelID)
			require.ErrorIs(t, err, tt.expectedErr)
		})
	}

	// none of the rejected edges may count
	profile, err := svc.ChannelProfile(ctx, "", b.Username)
	require.NoError(t, err)
	assert.EqualValues(t, 1, profile.SubscriberCount)
}

func TestUnsubscribe(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)

	a := saveUser(t, st)
	b := saveUser(t, st)
	require.NoError(t, svc.Subscribe(ctx, a.ID, b.ID))

	require.NoError(t, svc.Unsubscribe(ctx, a.ID, b.ID))
	require.ErrorIs(t, svc.Unsubscribe(ctx, a.ID, b.ID), apperr.ErrNotFound)

	profile, err := svc.ChannelProfile(ctx, a.ID, b.Username)
	require.NoError(t, err)
	assert.EqualValues(t, 0, profile.SubscriberCount)
	assert.False(t, profile.IsSubscribed)
}

func TestWatchHistory(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)

	owner := saveUser(t, st)
	viewer := saveUser(t, st)

	history, err := svc.WatchHistory(ctx, viewer.ID)
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)

	video, err := st.SaveVideo(ctx, models.Video{Title: gofakeit.Sentence(3), OwnerID: owner.ID, IsPublished: true})
	require.NoError(t, err)

	require.NoError(t, svc.RecordView(ctx, viewer.ID, video.ID))
	require.ErrorIs(t, svc.RecordView(ctx, viewer.ID, "missing"), apperr.ErrNotFound)

	history, err = svc.WatchHistory(ctx, viewer.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, video.ID, history[0].ID)
	assert.EqualValues(t, 1, history[0].Views)
	require.NotNil(t, history[0].Owner)
	assert.Equal(t, models.Owner{
		FullName:  owner.FullName,
		Username:  owner.Username,
		AvatarURL: owner.AvatarURL,
	}, *history[0].Owner)

	_, err = svc.WatchHistory(ctx, "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}
