// Package endpoint implements the Endpoint (C1) and EndpointScheduler
// (C2) components of spec §4.1-§4.2: one container host wrapper plus the
// pool that admits runnable jobs onto it subject to per-endpoint
// capacity and a speed/load/name selection policy. The container host
// transport is github.com/docker/docker/client, the maintained Go
// Engine API client and this ecosystem's equivalent of the original's
// shiplift crate (no Go port of shiplift exists); usage is grounded on
// the Docker executor in _examples/other_examples
// (wdbaruni-bacalhau ... docker-executor.go): ContainerCreate,
// ContainerStart, ContainerWait, ImageInspectWithRaw.
package endpoint

// Transport names how an Endpoint reaches its container host (spec §3's
// EndpointDescriptor transport variants).
type Transport struct {
	// Scheme is "http" or "unix".
	Scheme string
	// Addr is the URI (http) or socket path (unix).
	Addr string
}

// Descriptor configures one Endpoint (spec §3 EndpointDescriptor).
type Descriptor struct {
	Name      string
	Transport Transport
	Speed     uint32
	MaxJobs   uint32

	RequiredImages      []string
	RequiredVersions    []string // allowlisted Docker Engine versions; empty = any
	RequiredAPIVersions []string // allowlisted Docker API versions; empty = any
}
