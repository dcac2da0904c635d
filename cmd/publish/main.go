package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	config "github.com/maheshrc27/clipflow/configs"
	"github.com/maheshrc27/clipflow/internal/models"
	"github.com/maheshrc27/clipflow/internal/repository"
	"github.com/maheshrc27/clipflow/internal/service"
)

func main() {
	var (
		req      models.UploadRequest
		privacy  string
		callback bool
		resume   string
	)
	flag.StringVar(&req.VideoPath, "video", "", "local video file or r2://<key>")
	flag.StringVar(&req.Title, "title", "", "post caption")
	flag.StringVar(&req.Description, "description", "", "post description")
	flag.StringVar(&privacy, "privacy", "PUBLIC", "PUBLIC, FRIENDS, FOLLOWERS or PRIVATE")
	flag.BoolVar(&req.DisableDuet, "disable-duet", false, "disable duets")
	flag.BoolVar(&req.DisableComment, "disable-comment", false, "disable comments")
	flag.BoolVar(&req.DisableStitch, "disable-stitch", false, "disable stitches")
	flag.BoolVar(&req.IsAIGC, "aigc", false, "label the video as AI generated")
	flag.BoolVar(&callback, "callback", false, "receive the authorization code on TIKTOK_REDIRECT_URI instead of pasting it")
	flag.StringVar(&resume, "resume", "", "poll an earlier publish id instead of uploading")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	level, err := models.ParsePrivacyLevel(privacy)
	if err != nil {
		log.Fatal(err)
	}
	req.PrivacyLevel = level

	codeProvider := service.ConsoleCodeProvider(os.Stdin, os.Stderr)
	if callback {
		u, err := url.Parse(cfg.Tiktok.RedirectURI)
		if err != nil {
			log.Fatalf("Invalid TIKTOK_REDIRECT_URI: %v", err)
		}
		codeProvider = service.CallbackCodeProvider(u.Host, u.Path)
	}

	var r2Service *service.R2Service
	if cfg.R2Enabled() {
		r2Service = service.NewR2Service(*cfg)
	}

	tiktokClient := service.NewTiktokClient(*cfg, nil)
	publishService := service.NewPublishService(
		*cfg,
		repository.NewFileCredentialStore(cfg.TokenFile, cfg.SecretKey),
		service.NewAuthService(*cfg, tiktokClient, codeProvider),
		service.NewUploadService(*cfg, tiktokClient, nil),
		service.NewStatusService(*cfg, tiktokClient),
		service.NewVideoService(r2Service),
		nil,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var result models.PublishResult
	if resume != "" {
		result = publishService.Resume(ctx, resume)
	} else {
		result = publishService.Publish(ctx, req)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatal(err)
	}

	if !result.Succeeded() {
		stop()
		os.Exit(1)
	}
}
