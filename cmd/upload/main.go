package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"clipfarm/config"
	"clipfarm/publish"
	"clipfarm/types"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	videoPath := flag.String("video", "", "Path to the video file to upload")
	scriptPath := flag.String("script", "", "Optional product script JSON used for the metadata")
	title := flag.String("title", "", "Title (defaults to the script title or the filename)")
	tagsFlag := flag.String("tags", "", "Comma-separated list of tags replacing the defaults")
	account := flag.String("service-account", "", "Service account key file (defaults to YOUTUBE_SERVICE_ACCOUNT)")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if *videoPath == "" {
		flag.Usage()
		logger.Fatal("--video is required")
	}
	if err := ensureFileExists(*videoPath); err != nil {
		logger.Fatal("Invalid video path", zap.Error(err))
	}

	script := &types.ProductScript{}
	if *scriptPath != "" {
		data, err := os.ReadFile(*scriptPath)
		if err != nil {
			logger.Fatal("Failed to read script", zap.Error(err))
		}
		if err := json.Unmarshal(data, script); err != nil {
			logger.Fatal("Invalid script JSON", zap.Error(err))
		}
	}
	if t := strings.TrimSpace(*title); t != "" {
		script.Title = t
	}
	if script.Title == "" {
		name := filepath.Base(*videoPath)
		script.Title = strings.TrimSuffix(name, filepath.Ext(name))
	}

	meta := publish.BuildMetadata(script)
	if tags := parseTags(*tagsFlag); len(tags) > 0 {
		meta.Tags = tags
	}

	keyFile := *account
	if keyFile == "" {
		cfg, err := config.Load()
		if err != nil {
			logger.Fatal("Invalid configuration", zap.Error(err))
		}
		keyFile = cfg.YouTubeServiceAccount
	}
	if keyFile == "" {
		logger.Fatal("No service account configured")
	}

	ctx := context.Background()
	uploader, err := publish.NewUploader(ctx, keyFile, logger)
	if err != nil {
		logger.Fatal("Failed to initialize uploader", zap.Error(err))
	}

	f, err := os.Open(*videoPath)
	if err != nil {
		logger.Fatal("Failed to open video", zap.Error(err))
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		logger.Fatal("Failed to stat video", zap.Error(err))
	}

	id, err := uploader.Upload(ctx, f, info.Size(), meta)
	if err != nil {
		logger.Fatal("Upload failed", zap.Error(err))
	}
	fmt.Println(publish.ShortsURL(id))
}

func ensureFileExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, expected file: %s", path)
	}
	return nil
}

func parseTags(raw string) []string {
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		if clean := strings.TrimSpace(tag); clean != "" {
			tags = append(tags, clean)
		}
	}
	return tags
}
