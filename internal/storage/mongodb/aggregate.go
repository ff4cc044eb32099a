package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"vidhub/internal/domain/models"
	"vidhub/internal/storage"
)

type channelProfileDoc struct {
	ID                        bson.ObjectID `bson:"_id"`
	Username                  string        `bson:"username"`
	FullName                  string        `bson:"fullName"`
	Avatar                    string        `bson:"avatar"`
	CoverImage                string        `bson:"coverImage"`
	SubscriberCount           int64         `bson:"subscribersCount"`
	ChannelsSubscribedToCount int64         `bson:"channelsSubscribedToCount"`
	IsSubscribed              bool          `bson:"isSubscribed"`
	CreatedAt                 time.Time     `bson:"createdAt"`
}

type ownerDoc struct {
	FullName string `bson:"fullName"`
	Username string `bson:"username"`
	Avatar   string `bson:"avatar"`
}

type watchedVideoDoc struct {
	ID          bson.ObjectID `bson:"_id"`
	VideoFile   string        `bson:"videoFile"`
	Thumbnail   string        `bson:"thumbnail"`
	Title       string        `bson:"title"`
	Description string        `bson:"description"`
	Duration    float64       `bson:"duration"`
	Views       int64         `bson:"views"`
	IsPublished bool          `bson:"isPublished"`
	Owner       *ownerDoc     `bson:"owner"`
	CreatedAt   time.Time     `bson:"createdAt"`
	UpdatedAt   time.Time     `bson:"updatedAt"`
}

type watchHistoryDoc struct {
	History []watchedVideoDoc `bson:"history"`
}

// channelProfilePipeline resolves a channel by username and counts both sides of
// its subscription edges in one pass. A nil viewer never matches a subscriber.
func channelProfilePipeline(username string, viewer *bson.ObjectID) mongo.Pipeline {
	var viewerValue interface{}
	if viewer != nil {
		viewerValue = *viewer
	}

	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "username", Value: username}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: subscriptionsCollection},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "channel"},
			{Key: "as", Value: "subscribers"},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: subscriptionsCollection},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "subscriber"},
			{Key: "as", Value: "subscribedTo"},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "subscribersCount", Value: bson.D{{Key: "$size", Value: "$subscribers"}}},
			{Key: "channelsSubscribedToCount", Value: bson.D{{Key: "$size", Value: "$subscribedTo"}}},
			{Key: "isSubscribed", Value: bson.D{{Key: "$in", Value: bson.A{viewerValue, "$subscribers.subscriber"}}}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "username", Value: 1},
			{Key: "fullName", Value: 1},
			{Key: "avatar", Value: 1},
			{Key: "coverImage", Value: 1},
			{Key: "subscribersCount", Value: 1},
			{Key: "channelsSubscribedToCount", Value: 1},
			{Key: "isSubscribed", Value: 1},
			{Key: "createdAt", Value: 1},
		}}},
	}
}

// watchHistoryPipeline joins the user's watch history to videos, and each video to
// its owner's public fields. The final $map walks the stored id list so order and
// repeat views survive the join; ids of deleted videos drop out.
func watchHistoryPipeline(userID bson.ObjectID) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "_id", Value: userID}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: videosCollection},
			{Key: "localField", Value: "watchHistory"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "videos"},
			{Key: "pipeline", Value: bson.A{
				bson.D{{Key: "$lookup", Value: bson.D{
					{Key: "from", Value: usersCollection},
					{Key: "localField", Value: "owner"},
					{Key: "foreignField", Value: "_id"},
					{Key: "as", Value: "owner"},
					{Key: "pipeline", Value: bson.A{
						bson.D{{Key: "$project", Value: bson.D{
							{Key: "_id", Value: 0},
							{Key: "fullName", Value: 1},
							{Key: "username", Value: 1},
							{Key: "avatar", Value: 1},
						}}},
					}},
				}}},
				bson.D{{Key: "$addFields", Value: bson.D{
					{Key: "owner", Value: bson.D{{Key: "$arrayElemAt", Value: bson.A{"$owner", 0}}}},
				}}},
			}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "history", Value: bson.D{{Key: "$filter", Value: bson.D{
				{Key: "input", Value: bson.D{{Key: "$map", Value: bson.D{
					{Key: "input", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$watchHistory", bson.A{}}}}},
					{Key: "as", Value: "videoId"},
					{Key: "in", Value: bson.D{{Key: "$arrayElemAt", Value: bson.A{
						bson.D{{Key: "$filter", Value: bson.D{
							{Key: "input", Value: "$videos"},
							{Key: "as", Value: "video"},
							{Key: "cond", Value: bson.D{{Key: "$eq", Value: bson.A{"$$video._id", "$$videoId"}}}},
						}}},
						0,
					}}}},
				}}}},
				{Key: "as", Value: "entry"},
				{Key: "cond", Value: bson.D{{Key: "$ne", Value: bson.A{"$$entry", nil}}}},
			}}}},
		}}},
	}
}

// ChannelProfile returns the channel identified by username together with its
// subscription counts and whether viewerID subscribes to it. An empty viewerID
// is an anonymous viewer.
func (s *Storage) ChannelProfile(ctx context.Context, username, viewerID string) (*models.ChannelProfile, error) {
	const op = "storage.mongodb.ChannelProfile"

	var viewer *bson.ObjectID
	if viewerID != "" {
		oid, err := bson.ObjectIDFromHex(viewerID)
		if err == nil {
			viewer = &oid
		}
	}

	cursor, err := s.users.Aggregate(ctx, channelProfilePipeline(username, viewer))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var docs []channelProfileDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	doc := docs[0]

	return &models.ChannelProfile{
		ID:                        doc.ID.Hex(),
		Username:                  doc.Username,
		FullName:                  doc.FullName,
		AvatarURL:                 doc.Avatar,
		CoverImageURL:             doc.CoverImage,
		SubscriberCount:           doc.SubscriberCount,
		ChannelsSubscribedToCount: doc.ChannelsSubscribedToCount,
		IsSubscribed:              doc.IsSubscribed,
		CreatedAt:                 doc.CreatedAt,
	}, nil
}

// WatchHistory returns the user's watched videos, oldest first, each with its
// owner's public projection embedded.
func (s *Storage) WatchHistory(ctx context.Context, userID string) ([]models.WatchedVideo, error) {
	const op = "storage.mongodb.WatchHistory"

	oid, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	cursor, err := s.users.Aggregate(ctx, watchHistoryPipeline(oid))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var docs []watchHistoryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	history := make([]models.WatchedVideo, 0, len(docs[0].History))
	for _, v := range docs[0].History {
		entry := models.WatchedVideo{
			ID:           v.ID.Hex(),
			Title:        v.Title,
			Description:  v.Description,
			VideoURL:     v.VideoFile,
			ThumbnailURL: v.Thumbnail,
			Duration:     v.Duration,
			Views:        v.Views,
			IsPublished:  v.IsPublished,
			CreatedAt:    v.CreatedAt,
			UpdatedAt:    v.UpdatedAt,
		}
		if v.Owner != nil {
			entry.Owner = &models.Owner{
				FullName:  v.Owner.FullName,
				Username:  v.Owner.Username,
				AvatarURL: v.Owner.Avatar,
			}
		}
		history = append(history, entry)
	}

	return history, nil
}
