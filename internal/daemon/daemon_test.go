package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/satcam/internal/command"
	"firestige.xyz/satcam/internal/core"
	"firestige.xyz/satcam/internal/csp"
	"firestige.xyz/satcam/internal/netstack"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	configPath := filepath.Join(dir, "satcam.yml")
	configContent := `
satcam:
  node:
    address: 0x1C1F
    hostname: test-satcam
  network:
    interface: can
    can:
      device: virtual
  dispatcher:
    period: 10ms
  coordinator:
    period: 10ms
  camera:
    width: 16
    height: 8
    setup_delay: 20ms
    dma_interval: 5ms
    output_dir: ` + filepath.Join(dir, "images") + `
  metrics:
    enabled: false
  log:
    level: debug
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))
	return configPath
}

func TestDaemon_StartStopIntegration(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, tmpDir)
	socketPath := filepath.Join(tmpDir, "satcam.sock")
	pidFile := filepath.Join(tmpDir, "satcam.pid")

	d, err := New(configPath, socketPath, pidFile)
	require.NoError(t, err)
	require.NoError(t, d.Start())

	pid, err := ReadPIDFile(pidFile)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.Eventually(t, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "UDS socket was not created")

	runDone := make(chan error, 1)
	go func() {
		runDone <- d.Run()
	}()

	// A ground station on the same virtual bus.
	require.NotNil(t, d.VirtualBus())
	ground, err := netstack.NewCANInterface(d.VirtualBus().Open(0), netstack.CANOptions{Address: 0x1C3F})
	require.NoError(t, err)
	defer ground.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, ground.Send(ctx, csp.NewTrigger(0x1C3F, 0x1C1F, 40)))

	var payloads [][]byte
	for len(payloads) < 2 {
		p, err := ground.Receive(ctx)
		require.NoError(t, err)
		// Log events are a single byte; status reports carry a code word.
		if len(p.Payload) >= 2 {
			payloads = append(payloads, p.Payload)
		}
	}
	assert.Equal(t, []byte{0x01, 0x0F}, payloads[0][:2], "capture starting")
	assert.Equal(t, []byte{0x01, 0x0A}, payloads[1][:2], "capture done")

	client := command.NewUDSClient(socketPath, 2*time.Second)
	resp, err := client.CaptureStatus(context.Background())
	require.NoError(t, err)
	require.Nil(t, resp.Error)

	images, err := filepath.Glob(filepath.Join(tmpDir, "images", "*.sc"))
	require.NoError(t, err)
	assert.Len(t, images, 1)

	resp, err = client.DaemonShutdown(context.Background())
	require.NoError(t, err)
	require.Nil(t, resp.Error)

	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop within timeout")
	}

	_, err = os.Stat(pidFile)
	assert.True(t, os.IsNotExist(err), "PID file was not removed after shutdown")
	_, err = os.Stat(socketPath)
	assert.True(t, os.IsNotExist(err), "UDS socket was not removed after shutdown")
	assert.NoError(t, d.Stop(), "stop is idempotent")
}

func TestDaemon_Reload(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, tmpDir)

	d, err := New(configPath, "", "")
	require.NoError(t, err)
	require.NoError(t, d.initLogging())

	updated := `
satcam:
  node:
    address: 0x0100
  log:
    level: warn
`
	require.NoError(t, os.WriteFile(configPath, []byte(updated), 0644))
	require.NoError(t, d.Reload())
	assert.Equal(t, "warn", d.Config().Log.Level)
	assert.Equal(t, uint16(0x1C1F), d.Config().Node.Address, "node changes need a restart")

	require.NoError(t, os.WriteFile(configPath, []byte("satcam:\n  log:\n    level: loud\n"), 0644))
	assert.Error(t, d.Reload())
}

func TestDaemon_UDPInterface(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "satcam.yml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
satcam:
  network:
    interface: udp
    udp:
      listen: 127.0.0.1:0
      remote: 127.0.0.1:9
  camera:
    width: 16
    height: 8
    setup_delay: 1h
  metrics:
    enabled: false
`), 0644))

	d, err := New(configPath, filepath.Join(tmpDir, "s.sock"), "")
	require.NoError(t, err)
	require.NoError(t, d.Start())
	assert.Nil(t, d.VirtualBus())
	assert.NoError(t, d.Stop())
}

func TestReadPIDFile(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadPIDFile(filepath.Join(dir, "missing.pid"))
	assert.ErrorIs(t, err, core.ErrDaemonNotRunning)

	bad := filepath.Join(dir, "bad.pid")
	require.NoError(t, os.WriteFile(bad, []byte("abc\n"), 0644))
	_, err = ReadPIDFile(bad)
	assert.Error(t, err)

	good := filepath.Join(dir, "good.pid")
	require.NoError(t, os.WriteFile(good, []byte("4242\n"), 0644))
	pid, err := ReadPIDFile(good)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
}
