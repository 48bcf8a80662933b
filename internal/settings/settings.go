// Package settings resolves run settings from flags, environment variables
// and defaults.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/eniac111/oodeploy/internal/deployment"
	"github.com/eniac111/oodeploy/internal/reboot"
)

// Setting keys. Flags of the same name are bound to them.
const (
	KeyConfig        = "config"
	KeyScript        = "script"
	KeyLogLevel      = "log-level"
	KeyPushgateway   = "pushgateway"
	KeyProbeInterval = "probe-interval"
	KeyProbeRetries  = "probe-retries"
)

const (
	// ConfigEnv overrides the deployment file location.
	ConfigEnv = "CONF_CONFIG_FILE"
	// InputEnvPrefix prefixes the user input variables, e.g. OO_INSTALL_RH_USERNAME.
	InputEnvPrefix = "OO_INSTALL_"

	envPrefix   = "OODEPLOY"
	inputKey    = "input."
	scriptName  = "openshift.sh"
	defaultConf = ".openshift/oo-install-cfg.yml"
)

// Settings are the resolved values for one run.
type Settings struct {
	ConfigFile    string
	Script        string
	LogLevel      string
	Pushgateway   string
	ProbeInterval time.Duration
	ProbeRetries  int
	// Inputs holds the OO_INSTALL_* values that were set, keyed by input name.
	Inputs map[string]string
}

// New returns a viper instance with defaults and environment bindings.
// Remaining settings can be overridden with OODEPLOY_<KEY> variables.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	if home, err := os.UserHomeDir(); err == nil {
		v.SetDefault(KeyConfig, filepath.Join(home, defaultConf))
	}
	if exe, err := os.Executable(); err == nil {
		v.SetDefault(KeyScript, filepath.Join(filepath.Dir(exe), scriptName))
	} else {
		v.SetDefault(KeyScript, scriptName)
	}
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyProbeInterval, reboot.DefaultInterval)
	v.SetDefault(KeyProbeRetries, reboot.DefaultRetries)

	_ = v.BindEnv(KeyConfig, ConfigEnv)
	for _, name := range deployment.InputNames() {
		_ = v.BindEnv(inputKey+name, InputEnvPrefix+strings.ToUpper(name))
	}
	return v
}

// Load reads the resolved settings out of v.
func Load(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		ConfigFile:    v.GetString(KeyConfig),
		Script:        v.GetString(KeyScript),
		LogLevel:      v.GetString(KeyLogLevel),
		Pushgateway:   v.GetString(KeyPushgateway),
		ProbeInterval: v.GetDuration(KeyProbeInterval),
		ProbeRetries:  v.GetInt(KeyProbeRetries),
		Inputs:        map[string]string{},
	}

	if s.ConfigFile == "" {
		return nil, fmt.Errorf("no deployment config file given; set --%s or %s", KeyConfig, ConfigEnv)
	}
	if s.ProbeInterval <= 0 {
		return nil, fmt.Errorf("%s must be positive, got %s", KeyProbeInterval, s.ProbeInterval)
	}
	if s.ProbeRetries < 0 {
		return nil, fmt.Errorf("%s must not be negative, got %d", KeyProbeRetries, s.ProbeRetries)
	}

	for _, name := range deployment.InputNames() {
		if v.IsSet(inputKey + name) {
			s.Inputs[name] = v.GetString(inputKey + name)
		}
	}
	return s, nil
}
