package segment

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/tapedeck/internal/audio"
	apperrors "github.com/GriffinCanCode/tapedeck/internal/errors"
)

var testFormat = audio.Format{SampleRate: 8000, Channels: 1, BytesPerSample: 2} // 16000 B/s

func TestSinkRawWriteFinalize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.pcm")
	s, err := OpenSink(path, testFormat, ContainerRaw)
	require.NoError(t, err)

	data := noise(1000, 1)
	_, err = s.Write(data)
	require.NoError(t, err)
	require.NoError(t, s.Finalize())
	assert.Equal(t, int64(1000), s.Written())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestSinkFinalizeIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.pcm")
	s, err := OpenSink(path, testFormat, ContainerRaw)
	require.NoError(t, err)
	_, _ = s.Write(noise(10, 2))

	require.NoError(t, s.Finalize())
	require.NoError(t, s.Finalize())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(10), fi.Size())

	_, err = s.Write([]byte{1})
	assert.True(t, apperrors.IsCode(err, apperrors.IO))
}

func TestSinkDiscardRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	s, err := OpenSink(path, testFormat, ContainerWAV)
	require.NoError(t, err)
	_, _ = s.Write(noise(10, 3))

	require.NoError(t, s.Discard())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, s.Discard())
}

func TestSinkReplacesPreviousTake(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.pcm")
	require.NoError(t, os.WriteFile(path, noise(5000, 4), 0o644))

	s, err := OpenSink(path, testFormat, ContainerRaw)
	require.NoError(t, err)
	_, _ = s.Write(noise(7, 5))
	require.NoError(t, s.Finalize())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), fi.Size())
}

func TestSinkWAVHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	s, err := OpenSink(path, testFormat, ContainerWAV)
	require.NoError(t, err)

	data := noise(3000, 6)
	_, err = s.Write(data)
	require.NoError(t, err)
	require.NoError(t, s.Finalize())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, b, wavHeaderSize+3000)

	assert.Equal(t, "RIFF", string(b[0:4]))
	assert.Equal(t, uint32(36+3000), binary.LittleEndian.Uint32(b[4:]))
	assert.Equal(t, "WAVE", string(b[8:12]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(b[22:]))
	assert.Equal(t, uint32(8000), binary.LittleEndian.Uint32(b[24:]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(b[28:]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(b[34:]))
	assert.Equal(t, "data", string(b[36:40]))
	assert.Equal(t, uint32(3000), binary.LittleEndian.Uint32(b[40:]))
	assert.Equal(t, data, b[wavHeaderSize:])
}

func TestParseContainer(t *testing.T) {
	c, err := ParseContainer("raw")
	require.NoError(t, err)
	assert.Equal(t, ContainerRaw, c)
	assert.Equal(t, ".pcm", c.Ext())

	c, err = ParseContainer("")
	require.NoError(t, err)
	assert.Equal(t, ContainerWAV, c)

	_, err = ParseContainer("flac")
	assert.True(t, apperrors.IsCode(err, apperrors.ConfigInvalid))
}

func TestSanitizeTitle(t *testing.T) {
	tests := map[string]string{
		"Plain Title":            "Plain Title",
		`AC/DC: Back "In" Black?`: "ACDC Back In Black",
		"a<b>c|d*e\\f":           "abcdef",
		"tab\there\n":            "tabhere",
		"  padded  ":             "padded",
		"Héllo wörld ♥":          "Héllo wörld ♥",
		"???":                    "",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeTitle(in), "input %q", in)
	}
}
