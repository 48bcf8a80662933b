package types

// Config is the top level of the deployment file.
type Config struct {
	Deployment *Deployment `yaml:"Deployment"`
}

// Deployment holds the hosts to install and the global DNS settings.
type Deployment struct {
	Hosts []Host `yaml:"Hosts"`
	DNS   *DNS   `yaml:"DNS"`
}

// DNS carries the domain applications are published under.
type DNS struct {
	AppDomain string `yaml:"app_domain"`
}

// Host represents one machine in the deployment file.
type Host struct {
	SSHHost string   `yaml:"ssh_host"`
	Host    string   `yaml:"host"`
	User    string   `yaml:"user"`
	IPAddr  string   `yaml:"ip_addr,omitempty"`
	Roles   []string `yaml:"roles"`
	Port    int      `yaml:"port,omitempty"`
	KeyPath string   `yaml:"key_path,omitempty"` // Optional SSH key path
}
