package shell

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eniac111/oodeploy/internal/envmap"
	"github.com/eniac111/oodeploy/internal/ssh"
)

func newTestRunner() *Runner {
	return &Runner{Shell: []string{"sh", "-c"}}
}

func TestRun_PassesEnvironment(t *testing.T) {
	res, err := newTestRunner().Run(context.Background(), ssh.Request{
		Command: `printf %s "$CONF_DOMAIN"`,
		Env:     envmap.Map{"CONF_DOMAIN": "example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitStatus)
	assert.Equal(t, "example.com", res.Output)
}

func TestRun_ExitStatus(t *testing.T) {
	res, err := newTestRunner().Run(context.Background(), ssh.Request{Command: "exit 3"})
	require.Error(t, err)
	assert.Equal(t, 3, res.ExitStatus)
}

// fakeSudo puts a sudo on PATH that clears the environment like env_reset.
func fakeSudo(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	sudo := filepath.Join(dir, "sudo")
	require.NoError(t, os.WriteFile(sudo, []byte("#!/bin/sh\nexec env -i PATH=\"$PATH\" \"$@\"\n"), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestRun_ElevatedKeepsEnvironment(t *testing.T) {
	fakeSudo(t)
	script := filepath.Join(t.TempDir(), "openshift.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nprintf 'domain=[%s]' \"$CONF_DOMAIN\"\n"), 0o755))

	res, err := newTestRunner().Run(context.Background(), ssh.Request{
		Command:  ssh.Quote(script),
		Elevated: true,
		Env:      envmap.Map{"CONF_DOMAIN": "example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "domain=[example.com]", res.Output)
}

func TestRun_ElevatedRestoresEnvironment(t *testing.T) {
	fakeSudo(t)
	t.Setenv("CONF_DOMAIN", "original.example.com")

	_, err := newTestRunner().Run(context.Background(), ssh.Request{
		Command:  "false",
		Elevated: true,
		Env:      envmap.Map{"CONF_DOMAIN": "example.com"},
	})
	require.Error(t, err)
	assert.Equal(t, "original.example.com", os.Getenv("CONF_DOMAIN"))
}

func TestRun_RestoresEnvironmentAfterFailure(t *testing.T) {
	t.Setenv("CONF_DOMAIN", "original.example.com")
	require.NoError(t, os.Unsetenv("CONF_NODE_HOSTNAME"))

	_, err := newTestRunner().Run(context.Background(), ssh.Request{
		Command: "exit 1",
		Env:     envmap.Map{"CONF_DOMAIN": "example.com", "CONF_NODE_HOSTNAME": "node1"},
	})
	require.Error(t, err)

	assert.Equal(t, "original.example.com", os.Getenv("CONF_DOMAIN"))
	_, present := os.LookupEnv("CONF_NODE_HOSTNAME")
	assert.False(t, present)
}

func TestRun_RestoresEnvironmentAfterSuccess(t *testing.T) {
	t.Setenv("CONF_DOMAIN", "original.example.com")

	_, err := newTestRunner().Run(context.Background(), ssh.Request{
		Command: "true",
		Env:     envmap.Map{"CONF_DOMAIN": "example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "original.example.com", os.Getenv("CONF_DOMAIN"))
}

func TestUpload_CopiesWithMode(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "openshift.sh")
	dst := filepath.Join(dir, "copy.sh")
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/sh\n"), 0o600))

	err := newTestRunner().Upload(context.Background(), ssh.Transfer{Source: src, Destination: dst, Mode: 0o755})
	require.NoError(t, err)

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestUpload_SameFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "openshift.sh")
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/sh\n"), 0o600))

	assert.NoError(t, newTestRunner().Upload(context.Background(), ssh.Transfer{Source: src, Destination: src}))
}
