package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"clipfarm/config"
	"clipfarm/types"
	"clipfarm/video"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// Uploader publishes finished videos as YouTube Shorts.
type Uploader struct {
	service *youtube.Service
	logger  *zap.Logger
}

// NewUploader authenticates with a service account key file.
func NewUploader(ctx context.Context, serviceAccountFile string, logger *zap.Logger) (*Uploader, error) {
	data, err := os.ReadFile(serviceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read service account file: %w", err)
	}

	jwt, err := google.JWTConfigFromJSON(data, youtube.YoutubeUploadScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account: %w", err)
	}

	service, err := youtube.NewService(ctx, option.WithHTTPClient(jwt.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create YouTube service: %w", err)
	}
	return &Uploader{service: service, logger: logger}, nil
}

// Publish uploads the artifact with metadata derived from the script and
// returns the Shorts URL.
func (u *Uploader) Publish(ctx context.Context, script *types.ProductScript, artifact *video.Artifact) (string, error) {
	if artifact == nil || len(artifact.Data) == 0 {
		return "", fmt.Errorf("nothing to publish")
	}
	meta := BuildMetadata(script)
	id, err := u.Upload(ctx, bytes.NewReader(artifact.Data), int64(len(artifact.Data)), meta)
	if err != nil {
		return "", err
	}
	return ShortsURL(id), nil
}

// Upload sends media with the given metadata and returns the video id.
func (u *Uploader) Upload(ctx context.Context, media io.Reader, size int64, meta Metadata) (string, error) {
	u.logger.Info("Uploading video",
		zap.String("title", meta.Title),
		zap.Float64("size_mb", float64(size)/(1024*1024)))

	v := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        meta.Tags,
			CategoryId:  meta.CategoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           config.YouTubePrivacyStatus,
			SelfDeclaredMadeForKids: false,
		},
	}

	resp, err := u.service.Videos.Insert([]string{"snippet", "status"}, v).
		Media(media).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload video: %w", err)
	}

	u.logger.Info("Video uploaded", zap.String("video_id", resp.Id), zap.String("url", ShortsURL(resp.Id)))
	return resp.Id, nil
}

// ShortsURL is the public link of an uploaded video.
func ShortsURL(videoID string) string {
	return "https://youtube.com/shorts/" + videoID
}
