package solver

import (
	"fmt"
	"sort"
)

// builtins is the lookup table of bundled adapters. Selection happens here
// at startup, never by conditional branching in the core.
var builtins = map[string]Solver{
	"claude": ClaudeSolver{},
	"codex":  CodexSolver{},
	"gemini": GeminiSolver{},
	"aider":  AiderSolver{},
	"amp":    AmpSolver{},
}

// Lookup resolves an agent name to its adapter, consulting custom
// definitions from .drover/agents.yaml before the built-in table.
func Lookup(name string) (Solver, error) {
	custom, err := loadCustomSolvers("")
	if err != nil {
		return nil, err
	}
	if s, ok := custom[name]; ok {
		return s, nil
	}
	if s, ok := builtins[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("unknown agent %q (available: %v)", name, Names())
}

// Names lists the built-in adapter names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
