package solver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ticketmill/drover/internal/types"
)

// customAgentsFile is where users declare additional agent CLIs.
const customAgentsFile = ".drover/agents.yaml"

// customDef is one user-declared agent.
//
//	agents:
//	  - name: goose
//	    command: goose
//	    args: ["run", "--quiet"]
//	    resume_flag: "--session"
type customDef struct {
	Name       string   `yaml:"name"`
	Command    string   `yaml:"command"`
	Args       []string `yaml:"args"`
	ResumeFlag string   `yaml:"resume_flag"`
}

type customFile struct {
	Agents []customDef `yaml:"agents"`
}

// CustomSolver runs a user-declared agent CLI: fixed args, then the resume
// flag and token when resuming, then the prompt.
type CustomSolver struct {
	def customDef
}

func (c CustomSolver) Name() string    { return c.def.Name }
func (c CustomSolver) Command() string { return c.def.Command }

func (c CustomSolver) Execute(ctx context.Context, req Request) (*types.AttemptResult, error) {
	args := append([]string{}, c.def.Args...)
	if req.ResumeToken != "" && c.def.ResumeFlag != "" {
		args = append(args, c.def.ResumeFlag, req.ResumeToken)
	}
	args = append(args, BuildPrompt(req))
	return runAgent(ctx, req, c.def.Command, args)
}

// loadCustomSolvers reads the custom agents file, if present. dir overrides
// the lookup directory in tests; empty means the working directory.
func loadCustomSolvers(dir string) (map[string]Solver, error) {
	path := customAgentsFile
	if dir != "" {
		path = filepath.Join(dir, customAgentsFile)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var file customFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	solvers := make(map[string]Solver, len(file.Agents))
	for _, def := range file.Agents {
		if def.Name == "" || def.Command == "" {
			return nil, fmt.Errorf("%s: agent entries need both name and command", path)
		}
		solvers[def.Name] = CustomSolver{def: def}
	}
	return solvers, nil
}
