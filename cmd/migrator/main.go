package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"vidhub/internal/config"
	"vidhub/internal/domain/models"
	"vidhub/internal/storage"
	"vidhub/internal/storage/mongodb"
	"vidhub/internal/storage/sqlite"
)

const (
	demoUsername = "demo"
	demoEmail    = "demo@vidhub.local"
	demoPassword = "demo-password"
)

type store interface {
	SaveUser(ctx context.Context, u models.NewUser) (*models.User, error)
	UserByLogin(ctx context.Context, username, email string) (*models.User, error)
	SaveVideo(ctx context.Context, v models.Video) (*models.Video, error)
	Close(ctx context.Context) error
}

func main() {
	var configPath string
	var seed bool
	flag.StringVar(&configPath, "config", "", "path to config file (or use CONFIG_PATH env)")
	flag.BoolVar(&seed, "seed", false, "seed a demo channel with videos")
	flag.Parse()

	_ = godotenv.Load()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	cfg := config.LoadConfig(configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		st  store
		err error
	)
	switch cfg.Storage.Driver {
	case config.StorageMongo:
		log.Println("Connecting to MongoDB...")
		st, err = mongodb.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	case config.StorageSQLite:
		log.Println("Opening SQLite database...")
		st, err = sqlite.New(cfg.Storage.Path)
	}
	if err != nil {
		log.Fatalf("failed to open %s storage: %v", cfg.Storage.Driver, err)
	}
	defer st.Close(ctx)

	log.Printf("%s schema is up to date", cfg.Storage.Driver)

	if seed {
		log.Println("Seeding demo channel...")
		if err := seedDemo(ctx, st); err != nil {
			log.Fatalf("failed to seed demo channel: %v", err)
		}
	}

	fmt.Println("Database initialization completed successfully")
}

func seedDemo(ctx context.Context, st store) error {
	_, err := st.UserByLogin(ctx, demoUsername, demoEmail)
	if err == nil {
		log.Println("Demo channel already present, skipping")
		return nil
	}
	if !errors.Is(err, storage.ErrUserNotFound) {
		return err
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	owner, err := st.SaveUser(ctx, models.NewUser{
		Username:  demoUsername,
		Email:     demoEmail,
		FullName:  "Demo Channel",
		AvatarURL: "https://placehold.co/128x128.png",
		PassHash:  passHash,
	})
	if err != nil {
		return err
	}
	log.Printf("Demo channel seeded (username=%s, password=%s)", demoUsername, demoPassword)

	for i := 1; i <= 3; i++ {
		v, err := st.SaveVideo(ctx, models.Video{
			Title:        fmt.Sprintf("Demo video %d", i),
			Description:  "Seeded by the migrator",
			VideoURL:     fmt.Sprintf("https://media.example.com/demo-%d.mp4", i),
			ThumbnailURL: fmt.Sprintf("https://media.example.com/demo-%d.png", i),
			Duration:     float64(60 * i),
			IsPublished:  true,
			OwnerID:      owner.ID,
		})
		if err != nil {
			return err
		}
		log.Printf("Video seeded (id=%s)", v.ID)
	}

	return nil
}
