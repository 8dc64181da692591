package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"golang.org/x/xerrors"

	"github.com/distr1/butido/internal/pkgmodel"
	"github.com/distr1/butido/internal/pkgresolver"
)

// cmdwhatdepends implements `butido what-depends <name> [-t KIND,...]`
// (spec §6), listing every package that directly depends on name within
// the requested dependency categories.
func cmdwhatdepends(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("what-depends", flag.ExitOnError)
	types := fs.String("t", "", "comma-separated dependency types to check (system,system-runtime,build,runtime); default: all")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) < 1 {
		return xerrors.Errorf("what-depends: package_name is required")
	}
	name := rest[0]

	var kinds []pkgmodel.DependencyKind
	if *types != "" {
		for _, t := range strings.Split(*types, ",") {
			kinds = append(kinds, pkgmodel.DependencyKind(strings.TrimSpace(t)))
		}
	}

	resolver := pkgresolver.FileResolver{Dir: resolverDir()}
	tree, err := resolver.Resolve(ctx, name, "")
	if err != nil {
		return xerrors.Errorf("resolving package tree: %w", err)
	}

	for i, p := range tree.Dependents(name, kinds) {
		fmt.Printf("%d - %s - %s - %s - %s:%s\n", i, p.Name, p.Version, p.Source.URL, p.Source.Hash.Type, p.Source.Hash.Value)
	}
	return nil
}
