package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/tapedeck/internal/audio"
	"github.com/GriffinCanCode/tapedeck/internal/config"
	apperrors "github.com/GriffinCanCode/tapedeck/internal/errors"
	"github.com/GriffinCanCode/tapedeck/internal/playlist"
	"github.com/GriffinCanCode/tapedeck/internal/segment"
)

func testCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	f := cmd.Flags()
	f.String("playlist", "", "")
	f.String("output", "", "")
	f.String("container", "", "")
	f.String("device", "", "")
	f.String("log-level", "", "")
	f.String("log-file", "", "")
	f.String("http", "", "")
	f.String("health", "", "")
	f.Bool("no-encode", false, "")
	f.Bool("keep-raw", false, "")
	return cmd
}

func TestApplyFlagsOverridesOnlyChanged(t *testing.T) {
	cmd := testCommand()
	require.NoError(t, cmd.Flags().Parse([]string{"--playlist", "blue.m3u", "--no-encode", "--container", "raw"}))

	c := &config.Config{Playlist: "playlist.m3u", OutputDir: "/music", Container: "wav", EncodeEnabled: true}
	applyFlags(cmd, c)

	assert.Equal(t, "blue.m3u", c.Playlist)
	assert.Equal(t, "/music", c.OutputDir)
	assert.Equal(t, "raw", c.Container)
	assert.False(t, c.EncodeEnabled)
	assert.False(t, c.KeepRaw)
}

func TestBuildDepsWithoutEncoding(t *testing.T) {
	c := &config.Config{OutputDir: t.TempDir(), Container: "raw", SilentRunThreshold: 32}
	pl := playlist.New("Blue", []playlist.Entry{{Title: "River", Duration: 1}})

	deps, err := buildDeps(context.Background(), c, func() (*playlist.Playlist, error) { return pl, nil })
	require.NoError(t, err)

	assert.Nil(t, deps.Encoder)
	assert.Equal(t, segment.ContainerRaw, deps.Segment.Container)
	assert.Equal(t, 32, deps.Segment.SilentRunThreshold)
	got, err := deps.Playlist()
	require.NoError(t, err)
	assert.Same(t, pl, got)
}

func TestBuildDepsWithEncoding(t *testing.T) {
	c := &config.Config{Container: "wav", EncodeEnabled: true, MP3Bitrate: "192k", KeepRaw: true}
	deps, err := buildDeps(context.Background(), c, nil)
	require.NoError(t, err)

	assert.NotNil(t, deps.Encoder)
	assert.True(t, deps.Post.KeepRaw)
	assert.Nil(t, deps.Post.Uploader)
}

func TestBuildDepsRejectsContainer(t *testing.T) {
	_, err := buildDeps(context.Background(), &config.Config{Container: "flac"}, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ConfigInvalid))
}

func TestPrintDevices(t *testing.T) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	printDevices(cmd, []audio.DeviceInfo{
		{Name: "BlackHole 2ch", HostAPI: "Core Audio", MaxInputChannels: 2, DefaultSampleRate: 48000, Loopback: true},
		{Name: "MacBook Microphone", HostAPI: "Core Audio", MaxInputChannels: 1, DefaultSampleRate: 44100},
	})

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[1]), "BlackHole 2ch")
	assert.Contains(t, string(lines[1]), "yes")
	assert.NotContains(t, string(lines[2]), "yes")
}
