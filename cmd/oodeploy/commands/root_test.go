package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot_Subcommands(t *testing.T) {
	root := Root()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"deploy", "plan", "version"}, names)
}

func TestVersion(t *testing.T) {
	root := Root()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "oodeploy dev")
}

func TestDeploy_TooManyArgs(t *testing.T) {
	root := Root()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"deploy", "2.2", "node1", "extra"})

	assert.Error(t, root.Execute())
}

func TestPlan_UsesConfigFlag(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "cfg.yml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
Deployment:
  Hosts:
    - ssh_host: localhost
      host: all.example.com
      user: root
      ip_addr: 10.0.0.1
      roles: [broker, named, mqserver, dbserver, node]
  DNS:
    app_domain: example.com
`), 0o600))

	root := Root()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"plan", "--config", cfg})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "  * localhost: broker, named, mqserver, dbserver, node")
}

func TestPlan_ConfigFromEnvironment(t *testing.T) {
	t.Setenv("CONF_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yml"))

	root := Root()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"plan"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.yml")
}
