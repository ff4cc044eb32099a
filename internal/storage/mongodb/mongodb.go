package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"vidhub/internal/domain/models"
	"vidhub/internal/storage"
)

const (
	usersCollection         = "users"
	videosCollection        = "videos"
	subscriptionsCollection = "subscriptions"
)

type Storage struct {
	client        *mongo.Client
	database      *mongo.Database
	users         *mongo.Collection
	videos        *mongo.Collection
	subscriptions *mongo.Collection
}

type userDoc struct {
	ID           bson.ObjectID   `bson:"_id"`
	Username     string          `bson:"username"`
	Email        string          `bson:"email"`
	FullName     string          `bson:"fullName"`
	Avatar       string          `bson:"avatar"`
	CoverImage   string          `bson:"coverImage,omitempty"`
	PassHash     []byte          `bson:"password"`
	RefreshToken *string         `bson:"refreshToken"`
	WatchHistory []bson.ObjectID `bson:"watchHistory"`
	CreatedAt    time.Time       `bson:"createdAt"`
	UpdatedAt    time.Time       `bson:"updatedAt"`
}

type videoDoc struct {
	ID          bson.ObjectID `bson:"_id"`
	VideoFile   string        `bson:"videoFile"`
	Thumbnail   string        `bson:"thumbnail"`
	Title       string        `bson:"title"`
	Description string        `bson:"description"`
	Duration    float64       `bson:"duration"`
	Views       int64         `bson:"views"`
	IsPublished bool          `bson:"isPublished"`
	Owner       bson.ObjectID `bson:"owner"`
	CreatedAt   time.Time     `bson:"createdAt"`
	UpdatedAt   time.Time     `bson:"updatedAt"`
}

type subscriptionDoc struct {
	ID         bson.ObjectID `bson:"_id"`
	Subscriber bson.ObjectID `bson:"subscriber"`
	Channel    bson.ObjectID `bson:"channel"`
	CreatedAt  time.Time     `bson:"createdAt"`
}

// New creates a new MongoDB storage instance and sets up indexes.
func New(ctx context.Context, uri, database string) (*Storage, error) {
	const op = "storage.mongodb.New"

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	db := client.Database(database)
	s := &Storage{
		client:        client,
		database:      db,
		users:         db.Collection(usersCollection),
		videos:        db.Collection(videosCollection),
		subscriptions: db.Collection(subscriptionsCollection),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("%s: indexes: %w", op, err)
	}

	return s, nil
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "fullName", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}

	// one edge per (subscriber, channel); channel lookups drive subscriber counts
	_, err = s.subscriptions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "subscriber", Value: 1}, {Key: "channel", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "channel", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("subscriptions indexes: %w", err)
	}

	_, err = s.videos.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("videos.owner index: %w", err)
	}

	return nil
}

// Close disconnects from MongoDB.
func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping reports whether the server is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// SaveUser inserts a new user with an empty refresh token slot and watch history.
func (s *Storage) SaveUser(ctx context.Context, u models.NewUser) (*models.User, error) {
	const op = "storage.mongodb.SaveUser"

	now := time.Now().UTC()
	doc := userDoc{
		ID:           bson.NewObjectID(),
		Username:     u.Username,
		Email:        u.Email,
		FullName:     u.FullName,
		Avatar:       u.AvatarURL,
		CoverImage:   u.CoverImageURL,
		PassHash:     u.PassHash,
		WatchHistory: []bson.ObjectID{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if isDuplicateKeyError(err) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return doc.toModel(), nil
}

// UserByID retrieves a user by ID.
func (s *Storage) UserByID(ctx context.Context, userID string) (*models.User, error) {
	const op = "storage.mongodb.UserByID"

	oid, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return s.findUser(ctx, op, bson.D{{Key: "_id", Value: oid}})
}

// UserByLogin retrieves a user matching either the username or the email.
// Empty identifiers are ignored.
func (s *Storage) UserByLogin(ctx context.Context, username, email string) (*models.User, error) {
	const op = "storage.mongodb.UserByLogin"

	var or bson.A
	if username != "" {
		or = append(or, bson.D{{Key: "username", Value: username}})
	}
	if email != "" {
		or = append(or, bson.D{{Key: "email", Value: email}})
	}
	if len(or) == 0 {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return s.findUser(ctx, op, bson.D{{Key: "$or", Value: or}})
}

func (s *Storage) findUser(ctx context.Context, op string, filter bson.D) (*models.User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return doc.toModel(), nil
}

// SetRefreshToken overwrites the user's refresh token slot. An empty token clears it.
func (s *Storage) SetRefreshToken(ctx context.Context, userID, token string) error {
	const op = "storage.mongodb.SetRefreshToken"

	oid, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	var value interface{}
	if token != "" {
		value = token
	}

	res, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "refreshToken", Value: value},
			{Key: "updatedAt", Value: time.Now().UTC()},
		}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return nil
}

// SwapRefreshToken replaces the refresh token slot with next only if it still
// holds current. The compare and the write are a single update, so of two
// concurrent swaps from the same value exactly one succeeds.
func (s *Storage) SwapRefreshToken(ctx context.Context, userID, current, next string) error {
	const op = "storage.mongodb.SwapRefreshToken"

	oid, err := bson.ObjectIDFromHex(userID)
	if err != nil || current == "" {
		return fmt.Errorf("%s: %w", op, storage.ErrRefreshTokenMismatch)
	}

	res, err := s.users.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: oid},
			{Key: "refreshToken", Value: current},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "refreshToken", Value: next},
			{Key: "updatedAt", Value: time.Now().UTC()},
		}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrRefreshTokenMismatch)
	}

	return nil
}

// UpdatePassword stores a new password hash without touching any other field.
func (s *Storage) UpdatePassword(ctx context.Context, userID string, passHash []byte) error {
	const op = "storage.mongodb.UpdatePassword"

	oid, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	res, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "password", Value: passHash},
			{Key: "updatedAt", Value: time.Now().UTC()},
		}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return nil
}

// SaveVideo inserts a video owned by v.OwnerID.
func (s *Storage) SaveVideo(ctx context.Context, v models.Video) (*models.Video, error) {
	const op = "storage.mongodb.SaveVideo"

	owner, err := bson.ObjectIDFromHex(v.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	// mongo keeps no references, so the owner is checked here
	found, err := exists(ctx, s.users, owner)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	now := time.Now().UTC()
	doc := videoDoc{
		ID:          bson.NewObjectID(),
		VideoFile:   v.VideoURL,
		Thumbnail:   v.ThumbnailURL,
		Title:       v.Title,
		Description: v.Description,
		Duration:    v.Duration,
		IsPublished: v.IsPublished,
		Owner:       owner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := s.videos.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	v.ID = doc.ID.Hex()
	v.Views = 0
	v.CreatedAt = now
	v.UpdatedAt = now

	return &v, nil
}

// SaveSubscription inserts a subscriber -> channel edge.
func (s *Storage) SaveSubscription(ctx context.Context, subscriberID, channelID string) error {
	const op = "storage.mongodb.SaveSubscription"

	subscriber, err := bson.ObjectIDFromHex(subscriberID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	channel, err := bson.ObjectIDFromHex(channelID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	for _, id := range []bson.ObjectID{subscriber, channel} {
		found, err := exists(ctx, s.users, id)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if !found {
			return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
	}

	_, err = s.subscriptions.InsertOne(ctx, subscriptionDoc{
		ID:         bson.NewObjectID(),
		Subscriber: subscriber,
		Channel:    channel,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrSubscriptionExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// DeleteSubscription removes a subscriber -> channel edge.
func (s *Storage) DeleteSubscription(ctx context.Context, subscriberID, channelID string) error {
	const op = "storage.mongodb.DeleteSubscription"

	subscriber, err := bson.ObjectIDFromHex(subscriberID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, storage.ErrSubscriptionNotFound)
	}
	channel, err := bson.ObjectIDFromHex(channelID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, storage.ErrSubscriptionNotFound)
	}

	res, err := s.subscriptions.DeleteOne(ctx, bson.D{
		{Key: "subscriber", Value: subscriber},
		{Key: "channel", Value: channel},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrSubscriptionNotFound)
	}

	return nil
}

// AppendWatchHistory appends videoID to the user's history and counts the view.
// Nothing is written unless both the user and the video exist.
func (s *Storage) AppendWatchHistory(ctx context.Context, userID, videoID string) error {
	const op = "storage.mongodb.AppendWatchHistory"

	uid, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	vid, err := bson.ObjectIDFromHex(videoID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, storage.ErrVideoNotFound)
	}

	found, err := exists(ctx, s.videos, vid)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		return fmt.Errorf("%s: %w", op, storage.ErrVideoNotFound)
	}

	res, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: uid}},
		bson.D{
			{Key: "$push", Value: bson.D{{Key: "watchHistory", Value: vid}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}},
		},
	)
	if err != nil {
		return fmt.Errorf("%s: history: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	// a video deleted in between leaves a history entry that aggregation skips
	if _, err := s.videos.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: vid}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "views", Value: int64(1)}}}},
	); err != nil {
		return fmt.Errorf("%s: views: %w", op, err)
	}

	return nil
}

func exists(ctx context.Context, coll *mongo.Collection, id bson.ObjectID) (bool, error) {
	n, err := coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: id}}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// isDuplicateKeyError checks if the error is a MongoDB duplicate key error (code 11000).
func isDuplicateKeyError(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return false
}

func (d *userDoc) toModel() *models.User {
	history := make([]string, 0, len(d.WatchHistory))
	for _, id := range d.WatchHistory {
		history = append(history, id.Hex())
	}

	var refreshToken string
	if d.RefreshToken != nil {
		refreshToken = *d.RefreshToken
	}

	return &models.User{
		ID:            d.ID.Hex(),
		Username:      d.Username,
		Email:         d.Email,
		FullName:      d.FullName,
		AvatarURL:     d.Avatar,
		CoverImageURL: d.CoverImage,
		PassHash:      d.PassHash,
		RefreshToken:  refreshToken,
		WatchHistory:  history,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}
