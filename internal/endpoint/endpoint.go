package endpoint

import (
	"bytes"
	"context"
	"fmt"
	"io"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
	"github.com/google/go-containerregistry/pkg/name"
	"golang.org/x/xerrors"

	"github.com/distr1/butido/internal/berrors"
	"github.com/distr1/butido/internal/job"
	"github.com/distr1/butido/internal/logparser"
)

const scriptPath = "/butido/script"
const outputDir = "/butido/output"

// Endpoint wraps one container host (C1, spec §4.1). Holds a connected
// docker client and the descriptor it was set up with.
type Endpoint struct {
	descriptor Descriptor
	client     *dockerclient.Client
}

// Setup establishes the transport and verifies the host is usable: its
// reported engine/API versions belong to the configured allowlist (if
// any), and every required image is present. When the daemon answered but
// didn't satisfy the descriptor it fails with EndpointIncompatible (a
// version outside the allowlist) or ImageMissing (an absent required
// image) rather than EndpointUnreachable.
func Setup(ctx context.Context, d Descriptor) (*Endpoint, error) {
	var opts []dockerclient.Opt
	switch d.Transport.Scheme {
	case "unix":
		opts = append(opts, dockerclient.WithHost("unix://"+d.Transport.Addr))
	case "http", "":
		opts = append(opts, dockerclient.WithHost(d.Transport.Addr))
	default:
		return nil, xerrors.Errorf("endpoint %s: unsupported transport scheme %q", d.Name, d.Transport.Scheme)
	}
	opts = append(opts, dockerclient.WithAPIVersionNegotiation())

	cli, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, &berrors.EndpointUnreachable{Endpoint: d.Name, Err: err}
	}

	v, err := cli.ServerVersion(ctx)
	if err != nil {
		return nil, &berrors.EndpointUnreachable{Endpoint: d.Name, Err: err}
	}
	if len(d.RequiredVersions) > 0 && !contains(d.RequiredVersions, v.Version) {
		return nil, &berrors.EndpointIncompatible{Endpoint: d.Name, Reason: fmt.Sprintf("engine version %s not in allowlist", v.Version)}
	}
	if len(d.RequiredAPIVersions) > 0 && !contains(d.RequiredAPIVersions, v.APIVersion) {
		return nil, &berrors.EndpointIncompatible{Endpoint: d.Name, Reason: fmt.Sprintf("API version %s not in allowlist", v.APIVersion)}
	}

	e := &Endpoint{descriptor: d, client: cli}
	for _, img := range d.RequiredImages {
		if err := e.requireImage(ctx, img); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Endpoint) requireImage(ctx context.Context, image string) error {
	ref, err := name.ParseReference(image)
	if err != nil {
		return xerrors.Errorf("endpoint %s: parsing image reference %q: %w", e.descriptor.Name, image, err)
	}
	canonical := ref.Name()
	if _, _, err := e.client.ImageInspectWithRaw(ctx, canonical); err != nil {
		if dockerclient.IsErrNotFound(err) {
			return &berrors.ImageMissing{Endpoint: e.descriptor.Name, Image: canonical}
		}
		return &berrors.EndpointUnreachable{Endpoint: e.descriptor.Name, Err: err}
	}
	return nil
}

// Name returns the endpoint's configured name.
func (e *Endpoint) Name() string { return e.descriptor.Name }

// Speed returns the endpoint's configured relative speed.
func (e *Endpoint) Speed() uint32 { return e.descriptor.Speed }

// MaxJobs returns the endpoint's configured concurrent job capacity.
func (e *Endpoint) MaxJobs() uint32 { return e.descriptor.MaxJobs }

// Ping checks that the daemon is reachable.
func (e *Endpoint) Ping(ctx context.Context) error {
	if _, err := e.client.Ping(ctx); err != nil {
		return &berrors.EndpointUnreachable{Endpoint: e.descriptor.Name, Err: err}
	}
	return nil
}

// Stats reports the daemon's resource usage summary.
func (e *Endpoint) Stats(ctx context.Context) (dockertypes.Info, error) {
	info, err := e.client.Info(ctx)
	if err != nil {
		return dockertypes.Info{}, &berrors.EndpointUnreachable{Endpoint: e.descriptor.Name, Err: err}
	}
	return info, nil
}

// ListContainers lists containers matching filter.
func (e *Endpoint) ListContainers(ctx context.Context, opts dockertypes.ContainerListOptions) ([]dockertypes.Container, error) {
	cs, err := e.client.ContainerList(ctx, opts)
	if err != nil {
		return nil, &berrors.EndpointUnreachable{Endpoint: e.descriptor.Name, Err: err}
	}
	return cs, nil
}

// GetContainer inspects a single container by id.
func (e *Endpoint) GetContainer(ctx context.Context, id string) (dockertypes.ContainerJSON, error) {
	c, err := e.client.ContainerInspect(ctx, id)
	if err != nil {
		return dockertypes.ContainerJSON{}, &berrors.EndpointUnreachable{Endpoint: e.descriptor.Name, Err: err}
	}
	return c, nil
}

// RunJob implements the hot path of spec §4.1: create, copy the script
// in, exec, stream logs through the line buffer and parser, copy the
// output directory out as a tar stream, and report artifact paths.
func (e *Endpoint) RunJob(ctx context.Context, runnable job.RunnableJob, sink LogSink, staging Staging) ([]string, string, error) {
	env := environmentOf(runnable)

	resp, err := e.client.ContainerCreate(ctx, &container.Config{
		Image: string(runnable.Job.Image),
		Env:   env,
		Cmd:   []string{scriptPath},
	}, nil, nil, nil, "")
	if err != nil {
		return nil, "", xerrors.Errorf("endpoint %s: creating container: %w", e.descriptor.Name, err)
	}
	containerHash := resp.ID
	for _, w := range resp.Warnings {
		sink.Accept(logparser.LogItem{Kind: logparser.KindLine, Line: "docker warning: " + w})
	}
	// The container is force-removed when RunJob returns, unless ctx was
	// cancelled: an aborted orchestrator leaves in-flight containers running.
	defer func() {
		if ctx.Err() == nil {
			e.client.ContainerRemove(context.Background(), containerHash, dockertypes.ContainerRemoveOptions{Force: true})
		}
	}()

	if err := e.copyScriptIn(ctx, containerHash, runnable.Script); err != nil {
		return nil, containerHash, xerrors.Errorf("endpoint %s: copying script into container: %w", e.descriptor.Name, err)
	}

	if err := e.client.ContainerStart(ctx, containerHash, dockertypes.ContainerStartOptions{}); err != nil {
		return nil, containerHash, xerrors.Errorf("endpoint %s: starting container: %w", e.descriptor.Name, err)
	}

	logTail, exit, err := e.streamLogsAndWait(ctx, containerHash, sink)
	if err != nil {
		return nil, containerHash, err
	}

	rc, _, err := e.client.CopyFromContainer(ctx, containerHash, outputDir)
	if err != nil {
		return nil, containerHash, &berrors.ArtifactStageFailed{Err: err}
	}
	defer rc.Close()

	paths, err := staging.WriteFromTarStream(ctx, rc)
	if err != nil {
		return nil, containerHash, &berrors.ArtifactStageFailed{Err: err}
	}

	if exit != 0 {
		return paths, containerHash, &berrors.JobExecFailed{JobUUID: runnable.Job.UUID, Exit: exit, LogTail: logTail}
	}
	return paths, containerHash, nil
}

func (e *Endpoint) copyScriptIn(ctx context.Context, containerID, script string) error {
	tarball, err := tarSingleFile(scriptPath, []byte(script), 0o755)
	if err != nil {
		return err
	}
	return e.client.CopyToContainer(ctx, containerID, "/", tarball, dockertypes.CopyToContainerOptions{})
}

// streamLogsAndWait attaches to the container's combined stdout/stderr,
// feeding every line through a logparser.LineBuffer and forwarding
// parsed items to sink, then waits for the container to exit. It returns
// the last portion of raw output (for JobExecFailed.LogTail) and the
// exit code.
func (e *Endpoint) streamLogsAndWait(ctx context.Context, containerID string, sink LogSink) (string, int, error) {
	waitCh, errCh := e.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	out, err := e.client.ContainerLogs(ctx, containerID, dockertypes.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return "", 0, xerrors.Errorf("endpoint %s: attaching logs: %w", e.descriptor.Name, err)
	}
	defer out.Close()

	var buf logparser.LineBuffer
	var tail bytes.Buffer
	chunk := make([]byte, 32*1024)
	for {
		n, readErr := out.Read(chunk)
		if n > 0 {
			tail.Write(chunk[:n])
			if tail.Len() > 4096 {
				tail.Next(tail.Len() - 4096)
			}
			items, parseErr := buf.Write(chunk[:n])
			for _, item := range items {
				sink.Accept(item)
			}
			if parseErr != nil {
				return tail.String(), 0, xerrors.Errorf("endpoint %s: parsing log output: %w", e.descriptor.Name, parseErr)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return tail.String(), 0, xerrors.Errorf("endpoint %s: reading log output: %w", e.descriptor.Name, readErr)
		}
	}
	if final, err := buf.Close(); err == nil && final != nil {
		sink.Accept(*final)
	}

	select {
	case err := <-errCh:
		return tail.String(), 0, xerrors.Errorf("endpoint %s: waiting for container: %w", e.descriptor.Name, err)
	case status := <-waitCh:
		return tail.String(), int(status.StatusCode), nil
	case <-ctx.Done():
		return tail.String(), 0, ctx.Err()
	}
}

func environmentOf(runnable job.RunnableJob) []string {
	var env []string
	for _, res := range runnable.Resources {
		switch res.Kind {
		case job.ResourceEnvironment:
			env = append(env, res.Key+"="+res.Value)
		case job.ResourceArtifact:
			// Dependency artifacts are surfaced by path, named after the
			// producing job, so the script can locate them without
			// knowing the staging layout.
			env = append(env, fmt.Sprintf("BUTIDO_ARTIFACT_%s=%s", res.Artifact.ProducingJobUUID, res.Artifact.Path))
		}
	}
	return env
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
