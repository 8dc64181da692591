package pkgmodel

// PhaseName names an ordered build step (spec §3). The ordered list of
// phases to run for a submit is a submit-wide parameter (Configuration),
// not a property of any one Package.
type PhaseName string

// ImageName is an opaque reference to a container image; this package
// only carries the string. Endpoint.Setup in internal/endpoint parses the
// images an endpoint's descriptor lists as required (via
// go-containerregistry's name package) and checks they are present; the
// image a job names is not checked separately before the job is scheduled.
type ImageName string

func (i ImageName) String() string { return string(i) }
