// Package plan computes the order in which hosts are installed and later
// rebooted, and the environment each host's install job receives.
package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/eniac111/oodeploy/internal/deployment"
	"github.com/eniac111/oodeploy/internal/envmap"
	"github.com/eniac111/oodeploy/internal/roles"
)

// Step is one host's entry in the plan.
type Step struct {
	Host       deployment.Host
	Components []string
	// Env is this host's own snapshot; it shares no storage with other steps.
	Env envmap.Map
}

// Plan is the ordered list of hosts to install.
type Plan struct {
	Steps   []Step
	AddNode bool
}

// Hosts returns the ssh aliases in plan order.
func (p *Plan) Hosts() []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Host.SSHHost
	}
	return out
}

// Planner orders the hosts of a model by component precedence.
type Planner struct {
	model *deployment.Model
	ranks map[string]int
}

// New returns a planner for model. A nil precedence uses roles.DefaultPrecedence.
func New(model *deployment.Model, precedence []string) *Planner {
	if precedence == nil {
		precedence = roles.DefaultPrecedence
	}
	return &Planner{model: model, ranks: roles.Ranks(precedence)}
}

// rank returns the position of the earliest precedence entry h provides.
func (p *Planner) rank(h deployment.Host) (int, bool) {
	best, found := 0, false
	for _, c := range h.Components() {
		r, ok := p.ranks[c]
		if !ok {
			continue
		}
		if !found || r < best {
			best, found = r, true
		}
	}
	return best, found
}

// Build produces the plan. Hosts are sorted by rank; hosts with equal rank
// keep their order from the deployment file.
func (p *Planner) Build() (*Plan, error) {
	if p.model.AddNode() {
		return p.buildAddNode()
	}

	type ranked struct {
		host deployment.Host
		rank int
	}
	var candidates []ranked
	for _, h := range p.model.Hosts {
		if r, ok := p.rank(h); ok {
			candidates = append(candidates, ranked{host: h, rank: r})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].rank < candidates[j].rank
	})

	out := &Plan{Steps: make([]Step, 0, len(candidates))}
	for _, c := range candidates {
		out.Steps = append(out.Steps, p.step(c.host))
	}
	return out, nil
}

func (p *Planner) buildAddNode() (*Plan, error) {
	target, ok := p.model.Host(p.model.TargetSSHHost)
	if !ok {
		return nil, fmt.Errorf("target host %s is not part of the deployment", p.model.TargetSSHHost)
	}
	if _, ranked := p.ranks[roles.WorkerComponent]; !ranked {
		return nil, fmt.Errorf("precedence list does not include the %s component", roles.WorkerComponent)
	}
	return &Plan{Steps: []Step{p.step(target)}, AddNode: true}, nil
}

func (p *Planner) step(h deployment.Host) Step {
	comps := h.Components()
	env := p.model.Seed.Clone()
	env.Set(deployment.EnvInstallComponents, strings.Join(comps, ","))

	node := roles.NodeComponent()
	if h.HasRole(roles.Node) {
		env.Set(node.HostnameKey, h.Hostname)
		env.Set(node.AddrKey, h.IPAddr)
	} else {
		env.Delete(node.HostnameKey)
		env.Delete(node.AddrKey)
	}

	return Step{Host: h, Components: comps, Env: env}
}
