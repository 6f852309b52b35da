package chain

import (
	"sort"

	"github.com/pkg/errors"
)

type OperatorInfo struct {
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Addon       string          `json:"addon,omitempty"`
	New         func() Operator `json:"-"`
}

// Registry maps operator names to their metadata and factory. It is built
// explicitly by the host; nothing registers itself at init time.
type Registry struct {
	ops map[string]OperatorInfo
}

func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]OperatorInfo)}
}

func (r *Registry) Register(info OperatorInfo) error {
	if info.Name == "" {
		return errors.New("operator name is empty")
	}
	if info.New == nil {
		return errors.Errorf("operator %q has no factory", info.Name)
	}
	if _, ok := r.ops[info.Name]; ok {
		return errors.Errorf("operator %q already registered", info.Name)
	}
	r.ops[info.Name] = info
	return nil
}

func (r *Registry) Lookup(name string) (OperatorInfo, bool) {
	info, ok := r.ops[name]
	return info, ok
}

func (r *Registry) Create(name string) (Operator, error) {
	info, ok := r.ops[name]
	if !ok {
		return nil, errors.Errorf("unknown operator %q", name)
	}
	return info.New(), nil
}

// List returns all registrations sorted by name.
func (r *Registry) List() []OperatorInfo {
	out := make([]OperatorInfo, 0, len(r.ops))
	for _, info := range r.ops {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}
