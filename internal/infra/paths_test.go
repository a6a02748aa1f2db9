package infra

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectPaths(t *testing.T) {
	t.Setenv("SUDO_USER", "")
	t.Setenv("HOME", "/home/alex")
	t.Setenv("XDG_CONFIG_HOME", "")

	p := DetectPaths("")
	assert.Equal(t, "/home/alex/.smart-replays", p.DataDir)
	assert.Equal(t, "/home/alex/.config/smart-replays/config.yaml", p.ConfigFile)
	assert.Equal(t, filepath.Join(p.DataDir, "smart-replays.log"), p.LogFile)
	assert.Equal(t, "/home/alex/.smart-replays/smart-replays.sock", p.SocketFile)

	p = DetectPaths("~/replays-state")
	assert.Equal(t, "/home/alex/replays-state", p.DataDir)

	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	p = DetectPaths("/var/lib/sr")
	assert.Equal(t, "/var/lib/sr", p.DataDir)
	assert.Equal(t, "/tmp/xdg/smart-replays/config.yaml", p.ConfigFile)
}
