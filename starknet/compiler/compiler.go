package compiler

import (
	"context"
	"errors"
	"fmt"

	"github.com/NethermindEth/katana-go/core"
	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/utils"
)

// Version is stamped into every compiled class.
const Version = "2.6.3"

var (
	ErrEmptyProgram      = errors.New("sierra program is empty")
	ErrDuplicateSelector = errors.New("duplicate entry point selector")
	ErrInvalidIndex      = errors.New("entry point function index out of range")
)

// Compiler compiles Sierra classes to CASM.
type Compiler interface {
	Compile(ctx context.Context, sierra *core.SierraClass) (*core.CompiledClass, error)
}

// compiler limits how many compilations run at once.
type compiler struct {
	sem chan struct{}
	log utils.SimpleLogger
}

// New creates a Compiler running at most maxConcurrent compilations. The caller's context bounds
// the wait for a free slot.
func New(maxConcurrent uint, log utils.SimpleLogger) Compiler {
	if maxConcurrent == 0 {
		maxConcurrent = 1
	}
	return &compiler{
		sem: make(chan struct{}, maxConcurrent),
		log: log,
	}
}

func (c *compiler) Compile(ctx context.Context, sierra *core.SierraClass) (*core.CompiledClass, error) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for compilation slot: %w", ctx.Err())
	}

	compiled, err := Compile(sierra)
	if err != nil {
		c.log.Debugw("Sierra to CASM compilation failed", "err", err)
		return nil, err
	}
	return compiled, nil
}

// Compile lowers a Sierra class to the CASM form the native executor runs: the bytecode is the Sierra
// program and every entry point's offset is its function index.
func Compile(sierra *core.SierraClass) (*core.CompiledClass, error) {
	if len(sierra.Program) == 0 {
		return nil, ErrEmptyProgram
	}

	compiled := &core.CompiledClass{
		Prime:           core.CairoPrime,
		CompilerVersion: Version,
		Bytecode:        sierra.Program,
	}
	var err error
	if compiled.External, err = compileEntryPoints(sierra.EntryPoints.External, len(sierra.Program)); err != nil {
		return nil, fmt.Errorf("external: %w", err)
	}
	if compiled.L1Handler, err = compileEntryPoints(sierra.EntryPoints.L1Handler, len(sierra.Program)); err != nil {
		return nil, fmt.Errorf("l1 handler: %w", err)
	}
	if compiled.Constructor, err = compileEntryPoints(sierra.EntryPoints.Constructor, len(sierra.Program)); err != nil {
		return nil, fmt.Errorf("constructor: %w", err)
	}
	return compiled, nil
}

func compileEntryPoints(eps []core.SierraEntryPoint, programLen int) ([]core.CompiledEntryPoint, error) {
	seen := make(map[felt.Felt]struct{}, len(eps))
	compiled := make([]core.CompiledEntryPoint, 0, len(eps))
	for _, ep := range eps {
		if _, ok := seen[ep.Selector]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSelector, ep.Selector.String())
		}
		seen[ep.Selector] = struct{}{}
		if ep.Index >= uint64(programLen) {
			return nil, fmt.Errorf("%w: %d", ErrInvalidIndex, ep.Index)
		}
		compiled = append(compiled, core.CompiledEntryPoint{
			Offset:   ep.Index,
			Selector: ep.Selector,
			Builtins: []string{"range_check"},
		})
	}
	return compiled, nil
}
