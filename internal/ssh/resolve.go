package ssh

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	sshconfig "github.com/kevinburke/ssh_config"
)

const defaultPort = 22

// Endpoint holds per-host connection settings from the deployment file that
// take precedence over ~/.ssh/config.
type Endpoint struct {
	Port    int
	KeyPath string
}

// target is a fully resolved connection target.
type target struct {
	addr          string
	identityFiles []string
}

// loadSSHConfig parses an OpenSSH client config. A missing file yields nil.
func loadSSHConfig(path string) (*sshconfig.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	cfg, err := sshconfig.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ssh config %s: %w", path, err)
	}
	return cfg, nil
}

// resolve maps an ssh alias to a dial address and candidate identity files.
func resolve(cfg *sshconfig.Config, alias string, ep Endpoint, home string) target {
	hostname := alias
	port := defaultPort
	var identities []string

	if cfg != nil {
		if v, _ := cfg.Get(alias, "HostName"); v != "" {
			hostname = v
		}
		if v, _ := cfg.Get(alias, "Port"); v != "" {
			if p, err := strconv.Atoi(v); err == nil {
				port = p
			}
		}
		if vals, _ := cfg.GetAll(alias, "IdentityFile"); len(vals) > 0 {
			for _, v := range vals {
				identities = append(identities, expandHome(v, home))
			}
		}
	}

	if ep.Port != 0 {
		port = ep.Port
	}
	if ep.KeyPath != "" {
		identities = append([]string{expandHome(ep.KeyPath, home)}, identities...)
	}

	return target{
		addr:          net.JoinHostPort(hostname, strconv.Itoa(port)),
		identityFiles: identities,
	}
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
