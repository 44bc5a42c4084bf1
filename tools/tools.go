// Package tools defines the tool registry and the built-in tools. A tool
// is either free (runs directly) or paid (runs only after its payment
// proof verifies); the engine dispatches on the concrete type.
package tools

import (
	"sort"
	"strings"

	"github.com/vitwit/mcpay/types"
)

// Result is a tool's output: response text plus structured metadata.
type Result struct {
	Text     string
	Metadata map[string]any
}

// Tool is the common surface of free and paid tools. The engine type
// switches on *FreeTool / *PaidTool for dispatch.
type Tool interface {
	Name() string
	Descriptor() types.ToolDescriptor
}

// FreeTool executes synchronously and deterministically from input alone.
type FreeTool struct {
	name string
	desc types.ToolDescriptor
	run  func(input string) (Result, error)
}

func NewFreeTool(desc types.ToolDescriptor, run func(input string) (Result, error)) *FreeTool {
	return &FreeTool{name: strings.ToLower(desc.Name), desc: desc, run: run}
}

func (t *FreeTool) Name() string                     { return t.name }
func (t *FreeTool) Descriptor() types.ToolDescriptor { return t.desc }

func (t *FreeTool) Run(input string) (Result, error) {
	return t.run(input)
}

// PaidTool demands payment before its privileged operation runs. The
// engine only calls Run after the verifier has accepted a proof.
type PaidTool struct {
	name     string
	desc     types.ToolDescriptor
	amount   string
	currency string
	run      func(input string) (Result, error)
}

func NewPaidTool(desc types.ToolDescriptor, run func(input string) (Result, error)) *PaidTool {
	return &PaidTool{
		name:     strings.ToLower(desc.Name),
		desc:     desc,
		amount:   desc.PaymentAmount,
		currency: desc.PaymentCurrency,
		run:      run,
	}
}

func (t *PaidTool) Name() string                     { return t.name }
func (t *PaidTool) Descriptor() types.ToolDescriptor { return t.desc }
func (t *PaidTool) Amount() string                   { return t.amount }
func (t *PaidTool) Currency() string                 { return t.currency }

// Run executes the privileged operation. Callers must have verified
// payment first.
func (t *PaidTool) Run(input string) (Result, error) {
	return t.run(input)
}

// Registry maps case-normalized names to tools. It is fixed at startup
// and safe for concurrent reads.
type Registry struct {
	tools map[string]Tool
	names []string
}

func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		name := strings.ToLower(t.Name())
		if _, exists := r.tools[name]; !exists {
			r.names = append(r.names, name)
		}
		r.tools[name] = t
	}
	sort.Strings(r.names)
	return r
}

// Lookup finds a tool by name, case-insensitively.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[strings.ToLower(name)]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Descriptors returns the discovery catalog served by GET /tools.
func (r *Registry) Descriptors() map[string]types.ToolDescriptor {
	out := make(map[string]types.ToolDescriptor, len(r.tools))
	for name, t := range r.tools {
		out[name] = t.Descriptor()
	}
	return out
}
