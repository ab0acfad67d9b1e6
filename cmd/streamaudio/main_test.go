package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/opd-ai/streamaudio/config"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := &cli.App{
		Name:   "streamaudio",
		Flags:  baseFlags,
		Writer: &out,
		Commands: []*cli.Command{
			{Name: "print-config", Action: printConfig},
		},
	}
	err := app.Run(append([]string{"streamaudio"}, args...))
	return out.String(), err
}

func TestPrintConfigAppliesFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.yaml")
	require.NoError(t, os.WriteFile(path, []byte("remote_addr: 10.0.0.2:25204\ncodec: opus\n"), 0o600))

	out, err := runApp(t, "--config", path, "--framing", "rtp", "--wav", "out.wav", "print-config")
	require.NoError(t, err)

	var conf config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &conf))
	assert.Equal(t, "10.0.0.2:25204", conf.RemoteAddr)
	assert.Equal(t, "opus", conf.Codec)
	assert.Equal(t, config.FramingRTP, conf.Framing)
	assert.Equal(t, config.BackendClock, conf.Sink.Backend)
	assert.Equal(t, "out.wav", conf.Sink.WAVPath)
}

func TestPrintConfigRejectsBadFlag(t *testing.T) {
	_, err := runApp(t, "--codec", "mp3", "print-config")
	assert.Error(t, err)
}
