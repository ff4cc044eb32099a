// Package channels serves the read side of the social graph: channel profiles
// with subscription counts and a user's watch history with video owners
// resolved. It also maintains the edges those views are built from.
package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"vidhub/internal/domain/apperr"
	"vidhub/internal/domain/models"
	"vidhub/internal/lib/sl"
	"vidhub/internal/storage"
)

type Channels struct {
	logger        *slog.Logger
	aggregator    Aggregator
	userProvider  UserProvider
	subscriptions SubscriptionStore
	views         ViewRecorder
}

// Aggregator builds the joined read models in a single storage round trip.
type Aggregator interface {
	ChannelProfile(ctx context.Context, username, viewerID string) (*models.ChannelProfile, error)
	WatchHistory(ctx context.Context, userID string) ([]models.WatchedVideo, error)
}

type UserProvider interface {
	UserByID(ctx context.Context, userID string) (*models.User, error)
}

type SubscriptionStore interface {
	SaveSubscription(ctx context.Context, subscriberID, channelID string) error
	DeleteSubscription(ctx context.Context, subscriberID, channelID string) error
}

type ViewRecorder interface {
	AppendWatchHistory(ctx context.Context, userID, videoID string) error
}

// New returns a new instance of the Channels service.
func New(
	logger *slog.Logger,
	aggregator Aggregator,
	userProvider UserProvider,
	subscriptions SubscriptionStore,
	views ViewRecorder,
) *Channels {
	return &Channels{
		logger:        logger,
		aggregator:    aggregator,
		userProvider:  userProvider,
		subscriptions: subscriptions,
		views:         views,
	}
}

// ChannelProfile returns the channel owned by username as seen by viewerID.
// An empty viewerID is an anonymous viewer, who is never subscribed.
func (c *Channels) ChannelProfile(ctx context.Context, viewerID, username string) (*models.ChannelProfile, error) {
	const op = "channels.ChannelProfile"

	username = strings.ToLower(strings.TrimSpace(username))
	log := c.logger.With(slog.String("op", op), slog.String("username", username))

	if username == "" {
		return nil, fmt.Errorf("%s: %w", op, apperr.Validation("username is missing"))
	}

	profile, err := c.aggregator.ChannelProfile(ctx, username, viewerID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("channel not found")
			return nil, fmt.Errorf("%s: %w", op, apperr.NotFound("channel does not exist"))
		}
		log.Error("failed to aggregate channel profile", sl.Err(err))
		return nil, fmt.Errorf("%s: %w: %w", op, apperr.ErrInternal, err)
	}

	return profile, nil
}

// WatchHistory returns the user's watched videos in the order they were watched,
// oldest first. Videos that no longer exist are left out.
func (c *Channels) WatchHistory(ctx context.Context, userID string) ([]models.WatchedVideo, error) {
	const op = "channels.WatchHistory"
	log := c.logger.With(slog.String("op", op), slog.String("userID", userID))

	history, err := c.aggregator.WatchHistory(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return nil, fmt.Errorf("%s: %w", op, apperr.NotFound("user does not exist"))
		}
		log.Error("failed to aggregate watch history", sl.Err(err))
		return nil, fmt.Errorf("%s: %w: %w", op, apperr.ErrInternal, err)
	}

	if history == nil {
		history = []models.WatchedVideo{}
	}

	return history, nil
}

// Subscribe adds a subscriberID -> channelID edge. Both ends must be existing users.
func (c *Channels) Subscribe(ctx context.Context, subscriberID, channelID string) error {
	const op = "channels.Subscribe"
	log := c.logger.With(
		slog.String("op", op),
		slog.String("subscriberID", subscriberID),
		slog.String("channelID", channelID),
	)

	if subscriberID == channelID {
		return fmt.Errorf("%s: %w", op, apperr.Validation("cannot subscribe to own channel"))
	}

	for _, end := range []struct{ id, name string }{
		{subscriberID, "subscriber"},
		{channelID, "channel"},
	} {
		if _, err := c.userProvider.UserByID(ctx, end.id); err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				log.Warn(end.name + " not found")
				return fmt.Errorf("%s: %w", op, apperr.NotFound(end.name+" does not exist"))
			}
			log.Error("failed to get "+end.name, sl.Err(err))
			return fmt.Errorf("%s: %w: %w", op, apperr.ErrInternal, err)
		}
	}

	if err := c.subscriptions.SaveSubscription(ctx, subscriberID, channelID); err != nil {
		switch {
		case errors.Is(err, storage.ErrSubscriptionExists):
			return fmt.Errorf("%s: %w", op, apperr.Conflict("already subscribed"))
		case errors.Is(err, storage.ErrUserNotFound):
			return fmt.Errorf("%s: %w", op, apperr.NotFound("user does not exist"))
		}
		log.Error("failed to save subscription", sl.Err(err))
		return fmt.Errorf("%s: %w: %w", op, apperr.ErrInternal, err)
	}

	log.Info("subscribed")

	return nil
}

// Unsubscribe removes a subscriberID -> channelID edge.
func (c *Channels) Unsubscribe(ctx context.Context, subscriberID, channelID string) error {
	const op = "channels.Unsubscribe"
	log := c.logger.With(
		slog.String("op", op),
		slog.String("subscriberID", subscriberID),
		slog.String("channelID", channelID),
	)

	if err := c.subscriptions.DeleteSubscription(ctx, subscriberID, channelID); err != nil {
		if errors.Is(err, storage.ErrSubscriptionNotFound) {
			return fmt.Errorf("%s: %w", op, apperr.NotFound("subscription does not exist"))
		}
		log.Error("failed to delete subscription", sl.Err(err))
		return fmt.Errorf("%s: %w: %w", op, apperr.ErrInternal, err)
	}

	log.Info("unsubscribed")

	return nil
}

// RecordView counts a view of videoID and appends it to the user's history.
func (c *Channels) RecordView(ctx context.Context, userID, videoID string) error {
	const op = "channels.RecordView"
	log := c.logger.With(slog.String("op", op), slog.String("userID", userID), slog.String("videoID", videoID))

	if err := c.views.AppendWatchHistory(ctx, userID, videoID); err != nil {
		switch {
		case errors.Is(err, storage.ErrVideoNotFound):
			return fmt.Errorf("%s: %w", op, apperr.NotFound("video does not exist"))
		case errors.Is(err, storage.ErrUserNotFound):
			return fmt.Errorf("%s: %w", op, apperr.NotFound("user does not exist"))
		}
		log.Error("failed to record view", sl.Err(err))
		return fmt.Errorf("%s: %w: %w", op, apperr.ErrInternal, err)
	}

	return nil
}
