// Command trash-cleanup permanently deletes documents that have been in the
// trash longer than the configured retention. Run it from cron.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"odocs/api/internal/app"
	"odocs/api/internal/assets"
	"odocs/api/internal/config"
	"odocs/api/internal/storage"
	"odocs/api/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("WARNING: could not read .env: %v", err)
	}
	cfg := config.Load()
	retention := flag.Duration("retention", cfg.TrashRetention, "delete documents trashed longer ago than this")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline")
	flag.Parse()

	if *retention <= 0 {
		log.Fatalf("retention must be positive, got %s", *retention)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	objects, err := storage.Open(ctx, storage.Options{
		Driver:    cfg.StorageDriver,
		Endpoint:  cfg.StorageEndpoint,
		Region:    cfg.StorageRegion,
		Bucket:    cfg.StorageBucket,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		UseSSL:    cfg.StorageUseSSL,
	})
	if err != nil {
		log.Fatalf("object storage setup failed: %v", err)
	}
	service := app.New(cfg, store.NewPostgresStore(db), assets.NewPipeline(objects, assets.Options{Scheme: cfg.AssetScheme}))

	cutoff := time.Now().UTC().Add(-*retention)
	purged, err := service.PurgeTrash(ctx, cutoff)
	if err != nil {
		log.Fatalf("purge failed: %v", err)
	}
	log.Printf("trash-cleanup: purged %d documents trashed before %s", purged, cutoff.Format(time.RFC3339))
}
