package main

import (
	"context"
	"log/slog"

	"github.com/GriffinCanCode/tapedeck/internal/audio"
	"github.com/GriffinCanCode/tapedeck/internal/config"
	"github.com/GriffinCanCode/tapedeck/internal/playlist"
	"github.com/GriffinCanCode/tapedeck/internal/postprocess"
	"github.com/GriffinCanCode/tapedeck/internal/resilience"
	"github.com/GriffinCanCode/tapedeck/internal/segment"
	"github.com/GriffinCanCode/tapedeck/internal/session"
)

// buildDeps assembles session collaborators from configuration. playlistFn
// supplies the playlist at the start of each session.
func buildDeps(ctx context.Context, c *config.Config, playlistFn func() (*playlist.Playlist, error)) (session.Deps, error) {
	container, err := segment.ParseContainer(c.Container)
	if err != nil {
		return session.Deps{}, err
	}

	deps := session.Deps{
		Playlist: playlistFn,
		NewSource: func() (audio.Source, error) {
			return audio.NewCapturer(captureConfig(c))
		},
		Segment: segment.Config{
			OutputDir:              c.OutputDir,
			Container:              container,
			SilentRunThreshold:     c.SilentRunThreshold,
			TrackEndCheckThreshold: c.TrackEndCheckThreshold,
			MinimumValidTrackBytes: c.MinimumValidTrackBytes,
		},
	}

	if !c.EncodeEnabled {
		return deps, nil
	}
	deps.Encoder = postprocess.NewFFmpegEncoder(c.FFmpegPath, c.MP3Bitrate, c.EncodeTimeout)
	deps.Post = postprocess.Options{
		KeepRaw: c.KeepRaw,
		Retry:   resilience.EncodeRetryConfig(),
	}

	if c.MinioEndpoint != "" {
		up, err := postprocess.NewMinioUploader(ctx, postprocess.MinioConfig{
			Endpoint:  c.MinioEndpoint,
			AccessKey: c.MinioAccessKey,
			SecretKey: c.MinioSecretKey,
			Bucket:    c.MinioBucket,
			UseSSL:    c.MinioUseSSL,
		})
		if err != nil {
			// archiving is optional; recordings still land on disk
			slog.Warn("archive upload disabled", "endpoint", c.MinioEndpoint, "error", err)
		} else {
			deps.Post.Uploader = up
		}
	}
	return deps, nil
}

func captureConfig(c *config.Config) audio.CaptureConfig {
	return audio.CaptureConfig{
		SampleRate:      c.SampleRate,
		Channels:        c.Channels,
		FramesPerBuffer: c.FramesPerBuf,
		QueueFrames:     c.QueueFrames,
		Device:          c.CaptureDevice,
		LoopbackTokens:  c.LoopbackTokens,
	}
}
