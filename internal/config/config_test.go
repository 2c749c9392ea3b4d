package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seriallog.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Full(t *testing.T) {
	path := writeConfig(t, `
[serial]
port = " /dev/ttyUSB0 "
baud_rate = 9600
read_timeout = "250ms"

[log]
file = "serial.txt"
append = true
encoding = "ascii"
timestamp = false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	require.Equal(t, 9600, cfg.Serial.BaudRate)
	require.Equal(t, 250*time.Millisecond, cfg.ReadTimeout())
	require.Equal(t, "serial.txt", cfg.Log.File)
	require.True(t, cfg.Log.Append)
	require.Equal(t, "ascii", cfg.Log.Encoding)
	require.False(t, cfg.Timestamp())
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
[serial]
port = "COM3"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DefaultBaudRate, cfg.Serial.BaudRate)
	require.Equal(t, DefaultReadTimeout, cfg.ReadTimeout())
	require.Equal(t, DefaultEncoding, cfg.Log.Encoding)
	require.True(t, cfg.Timestamp())
	require.Empty(t, cfg.Log.File)
}

func TestLoad_InvalidTimeout(t *testing.T) {
	path := writeConfig(t, `
[serial]
read_timeout = "soon"
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "serial.read_timeout")
}

func TestLoad_ZeroTimeoutRejected(t *testing.T) {
	path := writeConfig(t, `
[serial]
read_timeout = "0s"
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "must be positive")
}

func TestLoad_UnknownEncoding(t *testing.T) {
	path := writeConfig(t, `
[log]
encoding = "klingon"
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "log.encoding")
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeConfig(t, `
[serial]
parity = "even"
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "unknown keys")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, DefaultBaudRate, cfg.Serial.BaudRate)
	require.Equal(t, DefaultReadTimeout, cfg.ReadTimeout())
	require.True(t, cfg.Timestamp())
	require.Equal(t, DefaultEncoding, cfg.Log.Encoding)

	// Defaults must pass the same checks as a loaded file
	require.NoError(t, cfg.Validate())
	require.Equal(t, DefaultReadTimeout, cfg.ReadTimeout())
}

func TestOverrides(t *testing.T) {
	cfg := Default()
	cfg.SetReadTimeout(2 * time.Second)
	cfg.SetTimestamp(false)
	require.NoError(t, cfg.Validate())

	require.Equal(t, 2*time.Second, cfg.ReadTimeout())
	require.False(t, cfg.Timestamp())

	cfg.SetReadTimeout(-time.Second)
	require.Error(t, cfg.Validate())
}
