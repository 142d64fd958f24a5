package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"attendx/internal/cloudinary"
	"attendx/internal/config"
	"attendx/internal/queue"
	"attendx/internal/store"
)

// Worker consumes submission messages and moves inline face snapshots to
// Cloudinary, replacing the record's data URL with the hosted one.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.StoreBackend != "postgres" {
		log.Fatal("worker requires STORE_BACKEND=postgres (the in-memory store is per-process)")
	}
	db, err := store.OpenDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()
	pg := store.NewPostgres(db)

	redisClient := store.NewRedis(cfg.RedisAddr)
	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		q = queue.NewRedisQueue(redisClient.Client, "attendx:submissions")
	} else {
		log.Fatal("worker requires QUEUE_BACKEND=redis (the in-memory queue is per-process)")
	}

	var cdn *cloudinary.Client
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		cdn = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("cloudinary not configured, face snapshots stay inline")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeSubmission {
			continue
		}

		rec, err := pg.GetRecord(ctx, msg.RecordID)
		if err != nil {
			log.Printf("fetch record %s failed: %v", msg.RecordID, err)
			continue
		}
		if cdn == nil || rec.FaceImage == "" || !strings.HasPrefix(rec.FaceImage, "data:") {
			continue
		}

		result, err := cdn.UploadBase64(rec.FaceImage)
		if err != nil {
			log.Printf("face upload failed for %s: %v", rec.ID, err)
			continue
		}
		if err := pg.SetFaceImage(ctx, rec.ID, result.SecureURL); err != nil {
			log.Printf("update face ref failed for %s: %v", rec.ID, err)
			continue
		}
		log.Printf("record %s face snapshot uploaded (%d bytes)", rec.ID, result.Bytes)
	}

	log.Println("worker stopped")
}
