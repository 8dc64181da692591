package job

import (
	"fmt"
	"strings"

	"github.com/distr1/butido/internal/pkgmodel"
)

// RenderScript joins a package's per-phase commands, in submit-wide
// phase order, into the script text an Endpoint copies into the
// container and executes (spec §3 "Script: the rendered build script
// text for a given job"). A phase the package does not implement is
// skipped. Each phase is preceded by a #BUTIDO:PHASE sentinel so the log
// parser can report progress through the build without the container
// needing any awareness of the orchestrator (spec §4.8a).
func RenderScript(phases []pkgmodel.PhaseName, pkg pkgmodel.Package) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\nset -e\n")
	for _, phase := range phases {
		cmds, ok := pkg.Phases[phase]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "echo '#BUTIDO:PHASE:%s'\n", phase)
		for _, cmd := range cmds {
			b.WriteString(cmd)
			b.WriteString("\n")
		}
	}
	b.WriteString("echo '#BUTIDO:STATE:OK:done'\n")
	return b.String()
}
