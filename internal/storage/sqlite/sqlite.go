package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"vidhub/internal/domain/models"
	"vidhub/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Storage struct {
	db *sql.DB
}

// New opens the database at storagePath and applies pending migrations.
func New(storagePath string) (*Storage, error) {
	const op = "storage.sqlite.New"

	// relations are declared with REFERENCES; the driver only enforces them on request
	db, err := sql.Open("sqlite3", storagePath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// sqlite serialises writers anyway; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migrations driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations up: %w", err)
	}

	return nil
}

// Close closes the underlying database.
func (s *Storage) Close(_ context.Context) error {
	return s.db.Close()
}

// Ping reports whether the database is usable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) SaveUser(ctx context.Context, u models.NewUser) (*models.User, error) {
	const op = "storage.sqlite.SaveUser"

	now := time.Now().UTC()
	user := &models.User{
		ID:            uuid.NewString(),
		Username:      u.Username,
		Email:         u.Email,
		FullName:      u.FullName,
		AvatarURL:     u.AvatarURL,
		CoverImageURL: u.CoverImageURL,
		PassHash:      u.PassHash,
		WatchHistory:  []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, full_name, avatar_url, cover_image_url, pass_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.FullName, user.AvatarURL, user.CoverImageURL, user.PassHash, now, now,
	)
	if err != nil {
		if isConstraintError(err) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

const selectUser = `
	SELECT id, username, email, full_name, avatar_url, cover_image_url, pass_hash, refresh_token, created_at, updated_at
	FROM users`

func (s *Storage) UserByID(ctx context.Context, userID string) (*models.User, error) {
	const op = "storage.sqlite.UserByID"

	user, err := s.scanUser(ctx, selectUser+" WHERE id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UserByLogin retrieves a user matching either the username or the email.
// Empty identifiers never match.
func (s *Storage) UserByLogin(ctx context.Context, username, email string) (*models.User, error) {
	const op = "storage.sqlite.UserByLogin"

	user, err := s.scanUser(ctx,
		selectUser+" WHERE (? <> '' AND username = ?) OR (? <> '' AND email = ?) LIMIT 1",
		username, username, email, email,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *Storage) scanUser(ctx context.Context, query string, args ...any) (*models.User, error) {
	var (
		user         models.User
		refreshToken sql.NullString
	)

	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.AvatarURL,
		&user.CoverImageURL,
		&user.PassHash,
		&refreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}
	user.RefreshToken = refreshToken.String

	rows, err := s.db.QueryContext(ctx,
		"SELECT video_id FROM watch_history WHERE user_id = ? ORDER BY seq", user.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	user.WatchHistory = []string{}
	for rows.Next() {
		var videoID string
		if err := rows.Scan(&videoID); err != nil {
			return nil, err
		}
		user.WatchHistory = append(user.WatchHistory, videoID)
	}

	return &user, rows.Err()
}

// SetRefreshToken overwrites the user's refresh token slot. An empty token clears it.
func (s *Storage) SetRefreshToken(ctx context.Context, userID, token string) error {
	const op = "storage.sqlite.SetRefreshToken"

	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET refresh_token = ?, updated_at = ? WHERE id = ?",
		sql.NullString{String: token, Valid: token != ""}, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := expectAffected(res, storage.ErrUserNotFound); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// SwapRefreshToken replaces the refresh token slot with next only if it still
// holds current, in a single conditional UPDATE.
func (s *Storage) SwapRefreshToken(ctx context.Context, userID, current, next string) error {
	const op = "storage.sqlite.SwapRefreshToken"

	if current == "" {
		return fmt.Errorf("%s: %w", op, storage.ErrRefreshTokenMismatch)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET refresh_token = ?, updated_at = ? WHERE id = ? AND refresh_token = ?",
		next, time.Now().UTC(), userID, current,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := expectAffected(res, storage.ErrRefreshTokenMismatch); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) UpdatePassword(ctx context.Context, userID string, passHash []byte) error {
	const op = "storage.sqlite.UpdatePassword"

	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET pass_hash = ?, updated_at = ? WHERE id = ?",
		passHash, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := expectAffected(res, storage.ErrUserNotFound); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) SaveVideo(ctx context.Context, v models.Video) (*models.Video, error) {
	const op = "storage.sqlite.SaveVideo"

	now := time.Now().UTC()
	v.ID = uuid.NewString()
	v.Views = 0
	v.CreatedAt = now
	v.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO videos (id, owner_id, title, description, video_url, thumbnail_url, duration, is_published, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.OwnerID, v.Title, v.Description, v.VideoURL, v.ThumbnailURL, v.Duration, v.IsPublished, now, now,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &v, nil
}

func (s *Storage) SaveSubscription(ctx context.Context, subscriberID, channelID string) error {
	const op = "storage.sqlite.SaveSubscription"

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO subscriptions (subscriber_id, channel_id, created_at) VALUES (?, ?, ?)",
		subscriberID, channelID, time.Now().UTC(),
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrSubscriptionExists)
		}
		if isForeignKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) DeleteSubscription(ctx context.Context, subscriberID, channelID string) error {
	const op = "storage.sqlite.DeleteSubscription"

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM subscriptions WHERE subscriber_id = ? AND channel_id = ?",
		subscriberID, channelID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := expectAffected(res, storage.ErrSubscriptionNotFound); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// AppendWatchHistory counts a view of videoID and appends it to the user's history.
func (s *Storage) AppendWatchHistory(ctx context.Context, userID, videoID string) error {
	const op = "storage.sqlite.AppendWatchHistory"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()

	res, err := tx.ExecContext(ctx, "UPDATE videos SET views = views + 1 WHERE id = ?", videoID)
	if err != nil {
		return fmt.Errorf("%s: views: %w", op, err)
	}
	if err := expectAffected(res, storage.ErrVideoNotFound); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	res, err = tx.ExecContext(ctx, "UPDATE users SET updated_at = ? WHERE id = ?", now, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := expectAffected(res, storage.ErrUserNotFound); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO watch_history (user_id, video_id, watched_at) VALUES (?, ?, ?)",
		userID, videoID, now,
	)
	if err != nil {
		return fmt.Errorf("%s: history: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

func expectAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func isForeignKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
