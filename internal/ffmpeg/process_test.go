package ffmpeg

import (
	"context"
	"io"
	"os/exec"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestProcess_ReadsStdout(t *testing.T) {
	sh := requireShell(t)

	p, err := newProcess(context.Background(), "echo", sh, []string{"-c", "printf hello"}, true, hclog.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, p.start())

	out, err := io.ReadAll(p.stdout)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))

	p.wait()
	assert.NoError(t, p.err())
}

func TestProcess_ErrorIncludesStderr(t *testing.T) {
	sh := requireShell(t)

	p, err := newProcess(context.Background(), "decoder", sh, []string{"-c", "echo 'Invalid data found' >&2; exit 3"}, false, hclog.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, p.start())
	p.wait()

	err = p.err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoder failed")
	assert.Contains(t, err.Error(), "Invalid data found")
}

func TestProcess_StopKillsSilently(t *testing.T) {
	sh := requireShell(t)

	p, err := newProcess(context.Background(), "sleeper", sh, []string{"-c", "exec sleep 30"}, true, hclog.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, p.start())

	start := time.Now()
	p.stop()
	assert.Less(t, time.Since(start), 10*time.Second)

	select {
	case <-p.exited():
	default:
		t.Fatal("process still running after stop")
	}
	assert.NoError(t, p.err(), "a killed process reports no error")
}

func TestProcess_StopBeforeStart(t *testing.T) {
	p, err := newProcess(context.Background(), "unused", "ffmpeg", nil, true, hclog.NewNullLogger())
	require.NoError(t, err)

	p.stop()
	p.wait()
	assert.NoError(t, p.err())
}
