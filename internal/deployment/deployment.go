// Package deployment turns the deployment file into a validated, immutable
// model of the hosts to install and the environment seed shared by every
// install job.
package deployment

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eniac111/oodeploy/internal/envmap"
	"github.com/eniac111/oodeploy/internal/roles"
	"github.com/eniac111/oodeploy/internal/types"
)

// Environment keys set by the model itself.
const (
	EnvInstallComponents = "CONF_INSTALL_COMPONENTS"
	EnvDomain            = "CONF_DOMAIN"
)

// LocalHost is the ssh alias that designates the control machine itself.
const LocalHost = "localhost"

// InputMap maps user input names, read from OO_INSTALL_<NAME>, to the
// install script keys they populate. One input may feed several keys.
var InputMap = map[string][]string{
	"subscription_type": {"CONF_INSTALL_METHOD"},
	"repos_base":        {"CONF_REPOS_BASE"},
	"os_repo":           {"CONF_RHEL_REPO"},
	"jboss_repo_base":   {"CONF_JBOSS_REPO_BASE"},
	"os_optional_repo":  {"CONF_RHEL_OPTIONAL_REPO"},
	"scl_repo":          {"CONF_RHSCL_REPO_BASE"},
	"rh_username":       {"CONF_SM_REG_NAME", "CONF_RHN_REG_NAME"},
	"rh_password":       {"CONF_SM_REG_PASS", "CONF_RHN_REG_PASS"},
	"sm_reg_pool":       {"CONF_SM_REG_POOL"},
	"sm_reg_pool_rhel":  {"CONF_SM_REG_POOL_RHEL"},
	"rhn_reg_actkey":    {"CONF_RHN_REG_ACTKEY"},
}

// InputNames returns the keys of InputMap in sorted order.
func InputNames() []string {
	names := make([]string, 0, len(InputMap))
	for n := range InputMap {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Host is a validated host entry.
type Host struct {
	SSHHost  string
	Hostname string
	User     string
	IPAddr   string
	Roles    []roles.Role
	Port     int
	KeyPath  string
	// Delegated lists components implied by a role of this host that another
	// host provides through a dedicated role, e.g. named next to broker.
	Delegated []string
}

// HasRole reports whether r is assigned to h.
func (h Host) HasRole(r roles.Role) bool {
	return slices.Contains(h.Roles, r)
}

// IsLocal reports whether h is the machine running the installer.
func (h Host) IsLocal() bool {
	return h.SSHHost == LocalHost
}

// Privileged reports whether commands on h run without sudo.
func (h Host) Privileged() bool {
	return h.User == "root"
}

// Components lists the component names h provides, in role order, without duplicates.
func (h Host) Components() []string {
	var out []string
	for _, r := range h.Roles {
		comps, _ := roles.Lookup(r)
		for _, c := range comps {
			if !slices.Contains(out, c.Name) && !slices.Contains(h.Delegated, c.Name) {
				out = append(out, c.Name)
			}
		}
	}
	return out
}

// IsPureNode reports whether the only role of h is node.
func (h Host) IsPureNode() bool {
	return len(h.Roles) == 1 && h.Roles[0] == roles.Node
}

// Model is the validated deployment. It is not modified after Build returns.
type Model struct {
	Hosts  []Host
	Domain string
	// TargetSSHHost is set in the add-node scenario.
	TargetSSHHost string
	// Seed is the environment shared by every host before per-host overrides.
	Seed envmap.Map
}

// Host returns the host with the given ssh alias.
func (m *Model) Host(sshHost string) (Host, bool) {
	for _, h := range m.Hosts {
		if h.SSHHost == sshHost {
			return h, true
		}
	}
	return Host{}, false
}

// AddNode reports whether the model targets a single node addition.
func (m *Model) AddNode() bool {
	return m.TargetSSHHost != ""
}

// Options carry the inputs that do not come from the deployment file.
type Options struct {
	// TargetNode is the display hostname of the node to add, if any.
	TargetNode string
	// Inputs holds user-supplied values keyed by input name (see InputMap).
	Inputs map[string]string
}

// Load reads and parses the deployment file at path.
func Load(path string) (*types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ConfigurationError{Field: "config", Reason: fmt.Sprintf("config file %s does not exist", path)}
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg types.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigurationError{Field: "config", Reason: fmt.Sprintf("failed to parse %s: %v", path, err)}
	}
	return &cfg, nil
}

// Build validates cfg and constructs the model. Every failure is a
// *ConfigurationError.
func Build(cfg *types.Config, opts Options) (*Model, error) {
	if cfg == nil || cfg.Deployment == nil || len(cfg.Deployment.Hosts) == 0 {
		return nil, &ConfigurationError{Field: "Deployment.Hosts", Reason: "the config does not contain deployment host information"}
	}
	if cfg.Deployment.DNS == nil {
		return nil, &ConfigurationError{Field: "Deployment.DNS", Reason: "the config does not contain DNS settings"}
	}

	m := &Model{
		Domain: cfg.Deployment.DNS.AppDomain,
		Seed:   envmap.Map{EnvInstallComponents: "all"},
	}

	for _, name := range InputNames() {
		v, ok := opts.Inputs[name]
		if !ok {
			continue
		}
		for _, key := range InputMap[name] {
			m.Seed.Set(key, v)
		}
	}

	roleOwner := map[roles.Role]string{}
	componentOwner := map[string]string{}
	dedicated := dedicatedOwners(cfg.Deployment.Hosts)

	for i, raw := range cfg.Deployment.Hosts {
		h, err := buildHost(i, raw)
		if err != nil {
			return nil, err
		}
		if _, dup := m.Host(h.SSHHost); dup {
			return nil, &ConfigurationError{Host: h.SSHHost, Field: "ssh_host", Reason: "ssh_host is used by more than one host"}
		}

		for _, r := range h.Roles {
			if !roles.SingleInstance(r) {
				continue
			}
			if owner, seen := roleOwner[r]; seen {
				return nil, &ConfigurationError{
					Host:   h.SSHHost,
					Reason: fmt.Sprintf("the %s role has been assigned to multiple hosts (%s, %s); this is not supported", r, owner, h.SSHHost),
				}
			}
			roleOwner[r] = h.SSHHost

			comps, _ := roles.Lookup(r)
			for i, c := range comps {
				if owner, ok := dedicated[c.Name]; ok && i > 0 && owner != h.SSHHost {
					if !slices.Contains(h.Delegated, c.Name) {
						h.Delegated = append(h.Delegated, c.Name)
					}
					continue
				}
				if owner, seen := componentOwner[c.Name]; seen && owner != h.SSHHost {
					return nil, &ConfigurationError{
						Host:   h.SSHHost,
						Reason: fmt.Sprintf("the %s component would be installed on multiple hosts (%s, %s)", c.Name, owner, h.SSHHost),
					}
				}
				componentOwner[c.Name] = h.SSHHost
				m.Seed.Set(c.HostnameKey, h.Hostname)
				if c.AddrKey != "" {
					m.Seed.Set(c.AddrKey, h.IPAddr)
				}
			}
		}

		m.Hosts = append(m.Hosts, h)
	}

	m.Seed.Set(EnvDomain, m.Domain)

	if opts.TargetNode != "" {
		target, err := resolveTarget(m.Hosts, opts.TargetNode)
		if err != nil {
			return nil, err
		}
		m.TargetSSHHost = target
	}

	return m, nil
}

// dedicatedOwners maps each component to the first host carrying a role whose
// own component it is. Such a host takes precedence over hosts that only get
// the component implied by another role.
func dedicatedOwners(hosts []types.Host) map[string]string {
	owners := map[string]string{}
	for _, raw := range hosts {
		for _, name := range raw.Roles {
			comps, ok := roles.Lookup(roles.Role(name))
			if !ok || len(comps) == 0 {
				continue
			}
			if _, seen := owners[comps[0].Name]; !seen {
				owners[comps[0].Name] = raw.SSHHost
			}
		}
	}
	return owners
}

func buildHost(index int, raw types.Host) (Host, error) {
	label := raw.SSHHost
	if label == "" {
		label = fmt.Sprintf("Hosts[%d]", index)
	}

	switch {
	case raw.SSHHost == "":
		return Host{}, missingField(label, "ssh_host")
	case raw.Host == "":
		return Host{}, missingField(label, "host")
	case raw.User == "":
		return Host{}, missingField(label, "user")
	case len(raw.Roles) == 0:
		return Host{}, missingField(label, "roles")
	}

	h := Host{
		SSHHost:  raw.SSHHost,
		Hostname: raw.Host,
		User:     raw.User,
		IPAddr:   raw.IPAddr,
		Port:     raw.Port,
		KeyPath:  raw.KeyPath,
	}

	needsAddr := false
	for _, name := range raw.Roles {
		r := roles.Role(name)
		if !roles.Known(r) {
			return Host{}, &ConfigurationError{Host: label, Field: "roles", Reason: fmt.Sprintf("unknown role %q; known roles: %s", name, knownRoles())}
		}
		if h.HasRole(r) {
			return Host{}, &ConfigurationError{
				Host:   label,
				Field:  "roles",
				Reason: fmt.Sprintf("role %q is specified more than once for the same host", name),
			}
		}
		h.Roles = append(h.Roles, r)
		needsAddr = needsAddr || roles.RequiresAddress(r)
	}

	if h.IPAddr == "" {
		if needsAddr {
			return Host{}, missingField(label, "ip_addr")
		}
	} else if _, err := netip.ParseAddr(h.IPAddr); err != nil {
		return Host{}, &ConfigurationError{Host: label, Field: "ip_addr", Reason: fmt.Sprintf("%q is not a valid IP address", h.IPAddr)}
	}

	return h, nil
}

func knownRoles() string {
	names := make([]string, 0, len(roles.All()))
	for _, r := range roles.All() {
		names = append(names, string(r))
	}
	return strings.Join(names, ", ")
}

func resolveTarget(hosts []Host, hostname string) (string, error) {
	var matches []Host
	for _, h := range hosts {
		if h.Hostname == hostname {
			matches = append(matches, h)
		}
	}

	switch len(matches) {
	case 0:
		return "", &ConfigurationError{Field: "target", Reason: fmt.Sprintf("unknown target: no host in the config has hostname %s", hostname)}
	case 1:
	default:
		return "", &ConfigurationError{Field: "target", Reason: fmt.Sprintf("unknown target: hostname %s matches %d hosts", hostname, len(matches))}
	}

	target := matches[0]
	if !target.IsPureNode() {
		return "", &ConfigurationError{
			Host:   target.SSHHost,
			Field:  "target",
			Reason: "target not a pure node: nodes can only be added as standalone components on their own systems",
		}
	}
	return target.SSHHost, nil
}
