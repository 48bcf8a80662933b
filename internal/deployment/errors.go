package deployment

import "fmt"

// ConfigurationError reports a deployment file that cannot be installed as
// written. It is always fatal and raised before any host is touched.
type ConfigurationError struct {
	// Host is the ssh alias of the offending host, empty for file-level problems.
	Host string
	// Field is the setting at fault, if any.
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Host != "" && e.Field != "":
		return fmt.Sprintf("configuration error: host %q: %s: %s", e.Host, e.Field, e.Reason)
	case e.Host != "":
		return fmt.Sprintf("configuration error: host %q: %s", e.Host, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
	default:
		return "configuration error: " + e.Reason
	}
}

func missingField(host, field string) error {
	return &ConfigurationError{Host: host, Field: field, Reason: "missing required setting"}
}
