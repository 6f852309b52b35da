// Package chain is the minimal operator host: a per-frame context carrying
// the GPU handles and logger, a named operator chain and an operator registry.
package chain

import (
	"github.com/Tutortoise/vision-inference/gpu"
	"github.com/Tutortoise/vision-inference/models"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Context struct {
	Device gpu.Device
	Queue  gpu.Queue
	Logger *zap.Logger
	// Frame counts completed Process passes.
	Frame int64
}

func NewContext(logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{Logger: logger}
}

func (c *Context) WithGPU(dev gpu.Device, queue gpu.Queue) *Context {
	c.Device = dev
	c.Queue = queue
	return c
}

// Log never returns nil.
func (c *Context) Log() *zap.Logger {
	if c == nil || c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

type Operator interface {
	Name() string
	Init(ctx *Context) error
	Process(ctx *Context)
	Cleanup()
}

// Source is an operator whose output image can feed another operator, either
// as CPU pixels or as a GPU texture.
type Source interface {
	CPUPixels() (models.Frame, bool)
	// OutputTexture returns nil when the source has no GPU output.
	OutputTexture() gpu.Texture
}

type entry struct {
	name string
	op   Operator
}

type Chain struct {
	ops    []entry
	byName map[string]Operator
}

func New() *Chain {
	return &Chain{byName: make(map[string]Operator)}
}

func (c *Chain) Add(name string, op Operator) error {
	if name == "" {
		return errors.New("operator name is empty")
	}
	if op == nil {
		return errors.Errorf("operator %q is nil", name)
	}
	if _, ok := c.byName[name]; ok {
		return errors.Errorf("operator %q already added", name)
	}
	c.ops = append(c.ops, entry{name: name, op: op})
	c.byName[name] = op
	return nil
}

func (c *Chain) Get(name string) Operator {
	return c.byName[name]
}

// Lookup returns the operator registered under name if it has type T.
func Lookup[T Operator](c *Chain, name string) (T, bool) {
	op, ok := c.byName[name].(T)
	return op, ok
}

// Init initializes every operator in insertion order. Failures are logged and
// collected; the remaining operators are still initialized.
func (c *Chain) Init(ctx *Context) error {
	var errs error
	for _, e := range c.ops {
		if err := e.op.Init(ctx); err != nil {
			ctx.Log().Error("operator init failed", zap.String("operator", e.name), zap.Error(err))
			errs = multierr.Append(errs, errors.Wrapf(err, "init %s", e.name))
		}
	}
	return errs
}

func (c *Chain) Process(ctx *Context) {
	for _, e := range c.ops {
		e.op.Process(ctx)
	}
	ctx.Frame++
}

// Cleanup releases operators in reverse order.
func (c *Chain) Cleanup() {
	for i := len(c.ops) - 1; i >= 0; i-- {
		c.ops[i].op.Cleanup()
	}
}
