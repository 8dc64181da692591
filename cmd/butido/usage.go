package main

import (
	"fmt"
	"os"
)

func usage() {
	fmt.Fprintf(os.Stderr, "butido [-flags] <command> [-flags] <args>\n")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "To get help on any command, use butido <command> -help.\n")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "\tbuild         - build a package and its dependencies in containers\n")
	fmt.Fprintf(os.Stderr, "\twhat-depends  - list packages that depend on a given package\n")
	fmt.Fprintf(os.Stderr, "\tdb            - inspect persisted submits/jobs/artifacts\n")
	fmt.Fprintf(os.Stderr, "\tendpoint      - inspect or exercise a configured endpoint\n")
	os.Exit(2)
}
