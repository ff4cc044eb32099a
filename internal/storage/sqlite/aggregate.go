package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"vidhub/internal/domain/models"
	"vidhub/internal/storage"
)

// ChannelProfile resolves the channel by username and computes its subscription
// counts in the same statement. An empty viewerID never matches a subscriber.
func (s *Storage) ChannelProfile(ctx context.Context, username, viewerID string) (*models.ChannelProfile, error) {
	const op = "storage.sqlite.ChannelProfile"

	var p models.ChannelProfile
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.full_name, u.avatar_url, u.cover_image_url, u.created_at,
		       (SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = u.id),
		       (SELECT COUNT(*) FROM subscriptions s WHERE s.subscriber_id = u.id),
		       EXISTS (SELECT 1 FROM subscriptions s WHERE s.channel_id = u.id AND s.subscriber_id = ?)
		FROM users u
		WHERE u.username = ?`,
		viewerID, username,
	).Scan(
		&p.ID,
		&p.Username,
		&p.FullName,
		&p.AvatarURL,
		&p.CoverImageURL,
		&p.CreatedAt,
		&p.SubscriberCount,
		&p.ChannelsSubscribedToCount,
		&p.IsSubscribed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &p, nil
}

// WatchHistory returns the user's watched videos, oldest first, with each owner's
// public fields joined in. The user row is the left side of the join so a user
// with no history still yields one all-NULL row and is told apart from a missing user.
func (s *Storage) WatchHistory(ctx context.Context, userID string) ([]models.WatchedVideo, error) {
	const op = "storage.sqlite.WatchHistory"

	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.title, v.description, v.video_url, v.thumbnail_url, v.duration, v.views, v.is_published,
		       v.created_at, v.updated_at,
		       o.full_name, o.username, o.avatar_url
		FROM users u
		LEFT JOIN watch_history w ON w.user_id = u.id
		LEFT JOIN videos v ON v.id = w.video_id
		LEFT JOIN users o ON o.id = v.owner_id
		WHERE u.id = ?
		ORDER BY w.seq`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var (
		found   bool
		history = []models.WatchedVideo{}
	)
	for rows.Next() {
		found = true

		var (
			id, title, description, videoURL, thumbnailURL sql.NullString
			duration                                       sql.NullFloat64
			views                                          sql.NullInt64
			isPublished                                    sql.NullBool
			createdAt, updatedAt                           sql.NullTime
			ownerName, ownerUsername, ownerAvatar          sql.NullString
		)
		if err := rows.Scan(
			&id, &title, &description, &videoURL, &thumbnailURL, &duration, &views, &isPublished,
			&createdAt, &updatedAt,
			&ownerName, &ownerUsername, &ownerAvatar,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}

		// no history, or a reference to a deleted video
		if !id.Valid {
			continue
		}

		entry := models.WatchedVideo{
			ID:           id.String,
			Title:        title.String,
			Description:  description.String,
			VideoURL:     videoURL.String,
			ThumbnailURL: thumbnailURL.String,
			Duration:     duration.Float64,
			Views:        views.Int64,
			IsPublished:  isPublished.Bool,
			CreatedAt:    createdAt.Time,
			UpdatedAt:    updatedAt.Time,
		}
		if ownerUsername.Valid {
			entry.Owner = &models.Owner{
				FullName:  ownerName.String,
				Username:  ownerUsername.String,
				AvatarURL: ownerAvatar.String,
			}
		}
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !found {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return history, nil
}
