package main

import (
	"testing"

	"github.com/mantonx/vcompress/internal/compress"
	"github.com/mantonx/vcompress/internal/config"
	"github.com/mantonx/vcompress/internal/media"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExportCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()

	flagSize, flagType, flagFPS = "", "", 0
	cmd := &cobra.Command{Use: "test"}
	addExportFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestExportConfig(t *testing.T) {
	defaults := config.CompressionConfig{VideoSize: "1920x1080", FileType: "mov", FrameRate: 25}

	tests := []struct {
		name    string
		args    []string
		want    compress.Configuration
		wantErr bool
	}{
		{
			name: "configured defaults",
			want: compress.Configuration{VideoSize: compress.Size1920x1080, FileType: compress.FileTypeMOV, FrameRate: 25},
		},
		{
			name: "flags override",
			args: []string{"--size", "540p", "--type", "mp4", "--fps", "15"},
			want: compress.Configuration{VideoSize: compress.Size960x540, FileType: compress.FileTypeMP4, FrameRate: 15},
		},
		{
			name:    "unknown size",
			args:    []string{"--size", "8k"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := exportConfig(newExportCmd(t, tt.args...), defaults)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWatermarkLayout_FixedRect(t *testing.T) {
	layout, err := watermarkLayout("/unused.png", "10,20,100,50")
	require.NoError(t, err)
	assert.Equal(t, media.Rect{X: 10, Y: 20, Width: 100, Height: 50}, layout(media.Size{Width: 1280, Height: 720}))

	_, err = watermarkLayout("/unused.png", "10,20")
	assert.Error(t, err)

	_, err = watermarkLayout("/does/not/exist.png", "")
	assert.Error(t, err)
}

func TestRootCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"compress", "probe", "batch", "serve"} {
		assert.True(t, names[want], want)
	}
}
