// Package roles maps deployment roles to the installable components they
// bring onto a host, along with the environment keys the install script
// reads to locate each component.
package roles

import "slices"

// Role is an abstract responsibility assigned to a host in the deployment file.
type Role string

const (
	Broker   Role = "broker"
	Named    Role = "named"
	Node     Role = "node"
	MQServer Role = "mqserver"
	DBServer Role = "dbserver"
)

// Component names understood by the install script.
const (
	ComponentBroker    = "broker"
	ComponentNamed     = "named"
	ComponentNode      = "node"
	ComponentActiveMQ  = "activemq"
	ComponentDatastore = "datastore"
)

// Component is a concrete installable unit.
type Component struct {
	Name        string
	HostnameKey string
	// AddrKey is empty for components that only need a hostname.
	AddrKey string
}

var catalog = map[Role][]Component{
	Broker: {
		{Name: ComponentBroker, HostnameKey: "CONF_BROKER_HOSTNAME", AddrKey: "CONF_BROKER_IP_ADDR"},
		{Name: ComponentNamed, HostnameKey: "CONF_NAMED_HOSTNAME", AddrKey: "CONF_NAMED_IP_ADDR"},
	},
	Named: {
		{Name: ComponentNamed, HostnameKey: "CONF_NAMED_HOSTNAME", AddrKey: "CONF_NAMED_IP_ADDR"},
	},
	Node: {
		{Name: ComponentNode, HostnameKey: "CONF_NODE_HOSTNAME", AddrKey: "CONF_NODE_IP_ADDR"},
	},
	MQServer: {
		{Name: ComponentActiveMQ, HostnameKey: "CONF_ACTIVEMQ_HOSTNAME"},
	},
	DBServer: {
		{Name: ComponentDatastore, HostnameKey: "CONF_DATASTORE_HOSTNAME"},
	},
}

// DefaultPrecedence is the order in which component types must be installed:
// name service and datastore first, worker nodes last.
var DefaultPrecedence = []string{
	ComponentNamed,
	ComponentDatastore,
	ComponentActiveMQ,
	ComponentBroker,
	ComponentNode,
}

// WorkerComponent is the only component installed in the add-node scenario.
const WorkerComponent = ComponentNode

// Lookup returns the components provided by role. The returned slice must
// not be modified.
func Lookup(r Role) ([]Component, bool) {
	c, ok := catalog[r]
	return c, ok
}

// Known reports whether r is in the catalog.
func Known(r Role) bool {
	_, ok := catalog[r]
	return ok
}

// All returns every known role in a stable order.
func All() []Role {
	out := make([]Role, 0, len(catalog))
	for r := range catalog {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

// SingleInstance reports whether at most one host may carry r.
func SingleInstance(r Role) bool {
	return r != Node
}

// RequiresAddress reports whether any component of r needs an IP address key.
func RequiresAddress(r Role) bool {
	for _, c := range catalog[r] {
		if c.AddrKey != "" {
			return true
		}
	}
	return false
}

// NodeComponent returns the worker component definition.
func NodeComponent() Component {
	return catalog[Node][0]
}

// Ranks builds a component -> precedence rank lookup table.
func Ranks(precedence []string) map[string]int {
	ranks := make(map[string]int, len(precedence))
	for i, name := range precedence {
		if _, seen := ranks[name]; !seen {
			ranks[name] = i
		}
	}
	return ranks
}
