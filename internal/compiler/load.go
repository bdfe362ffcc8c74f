package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/ripple/internal/ir"
)

// CompileFiles compiles the reactors declared in each CUE file, in argument
// order then declaration order. Files are compiled independently; duplicate
// reactor ids across files are left to Validate.
func CompileFiles(paths ...string) ([]ir.ReactorSpec, error) {
	ctx := cuecontext.New()

	var specs []ir.ReactorSpec
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		v := ctx.CompileBytes(data, cue.Filename(path))
		compiled, err := CompileReactors(v)
		if err != nil {
			return nil, err
		}
		specs = append(specs, compiled...)
	}
	return specs, nil
}
