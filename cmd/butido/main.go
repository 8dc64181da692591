// Command butido derives a DAG of container-executed build jobs from a
// package dependency tree, dispatches them across a pool of configured
// endpoints, and persists every completed job's provenance.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/distr1/butido/internal/berrors"

	butido "github.com/distr1/butido"
)

var (
	debug      = flag.Bool("debug", false, "format error messages with additional detail")
	configFlag = flag.String("config", "", "path to the TOML configuration file (default: $BUTIDO_CONFIG)")
)

type cmd struct {
	fn func(ctx context.Context, args []string) error
}

func funcmain() (exitCode int) {
	flag.Parse()

	verbs := map[string]cmd{
		"build":        {cmdbuild},
		"what-depends": {cmdwhatdepends},
		"db":           {cmddb},
		"endpoint":     {cmdendpoint},
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}
	verb, rest := args[0], args[1:]
	if verb == "help" {
		usage()
	}
	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		usage()
	}

	ctx, canc := butido.InterruptibleContext()
	defer canc()

	defer func() {
		if err := butido.RunAtExit(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			if exitCode == 0 {
				exitCode = 1
			}
		}
	}()

	if err := v.fn(ctx, rest); err != nil {
		if *debug {
			fmt.Fprintf(os.Stderr, "%s: %+v\n", verb, err)
		} else {
			fmt.Fprintf(os.Stderr, "%s: %v\n", verb, err)
		}
		var cfgErr *berrors.ConfigInvalid
		if isConfigInvalid(err, &cfgErr) {
			return 2
		}
		return 1
	}
	return 0
}

func isConfigInvalid(err error, target **berrors.ConfigInvalid) bool {
	for err != nil {
		if ce, ok := err.(*berrors.ConfigInvalid); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func main() {
	os.Exit(funcmain())
}
