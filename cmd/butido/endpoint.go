package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"golang.org/x/xerrors"

	"github.com/distr1/butido/internal/config"
	"github.com/distr1/butido/internal/endpoint"
)

// cmdendpoint implements `butido endpoint [NAME] {ping|stats|container
// ID ...|containers ...}` (spec §6).
func cmdendpoint(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return xerrors.Errorf("endpoint: a subcommand is required (ping|stats|container|containers)")
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}

	descriptor, rest, err := pickEndpoint(cfg.Endpoints, args)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return xerrors.Errorf("endpoint: a subcommand is required (ping|stats|container|containers)")
	}

	ep, err := endpoint.Setup(ctx, descriptor)
	if err != nil {
		return err
	}

	sub, rest := rest[0], rest[1:]
	switch sub {
	case "ping":
		return epPing(ctx, ep, rest)
	case "stats":
		return epStats(ctx, ep)
	case "container":
		return epContainer(ctx, ep, rest)
	case "containers":
		return epContainers(ctx, ep, rest)
	default:
		return xerrors.Errorf("endpoint: unknown subcommand %q", sub)
	}
}

// pickEndpoint consumes a leading NAME argument when it matches a
// configured endpoint; otherwise it falls back to the sole configured
// endpoint, erroring if more than one is configured and none was named.
func pickEndpoint(endpoints []endpoint.Descriptor, args []string) (endpoint.Descriptor, []string, error) {
	if len(args) > 0 {
		for _, d := range endpoints {
			if d.Name == args[0] {
				return d, args[1:], nil
			}
		}
	}
	if len(endpoints) == 1 {
		return endpoints[0], args, nil
	}
	return endpoint.Descriptor{}, nil, xerrors.Errorf("endpoint: NAME is required when more than one endpoint is configured")
}

func epPing(ctx context.Context, ep *endpoint.Endpoint, args []string) error {
	fs := flag.NewFlagSet("endpoint ping", flag.ExitOnError)
	n := fs.Int("n", 1, "number of pings to send")
	sleep := fs.Duration("sleep", time.Second, "delay between pings")
	fs.Parse(args)

	for i := 0; i < *n; i++ {
		start := time.Now()
		if err := ep.Ping(ctx); err != nil {
			return err
		}
		fmt.Printf("%s: pong in %s\n", ep.Name(), time.Since(start))
		if i < *n-1 {
			time.Sleep(*sleep)
		}
	}
	return nil
}

func epStats(ctx context.Context, ep *endpoint.Endpoint) error {
	info, err := ep.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s\tcontainers=%d\trunning=%d\timages=%d\n", ep.Name(), info.Containers, info.ContainersRunning, info.Images)
	return nil
}

func epContainer(ctx context.Context, ep *endpoint.Endpoint, args []string) error {
	if len(args) < 2 {
		return xerrors.Errorf("endpoint container: ID and an action (top|kill|delete|start|stop|exec) are required")
	}
	id, action, rest := args[0], args[1], args[2:]
	_ = rest
	switch action {
	case "top":
		c, err := ep.GetContainer(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\t%s\n", c.ID, c.State.Status, c.Image)
		return nil
	default:
		return xerrors.Errorf("endpoint container: action %q is not implemented by this build", action)
	}
}

func epContainers(ctx context.Context, ep *endpoint.Endpoint, args []string) error {
	if len(args) < 1 || args[0] != "list" {
		return xerrors.Errorf("endpoint containers: expected \"list\"")
	}
	fs := flag.NewFlagSet("endpoint containers list", flag.ExitOnError)
	listStopped := fs.Bool("list-stopped", false, "include stopped containers")
	fs.Parse(args[1:])

	containers, err := ep.ListContainers(ctx, dockertypes.ContainerListOptions{All: *listStopped})
	if err != nil {
		return err
	}
	for _, c := range containers {
		fmt.Printf("%s\t%s\t%s\n", c.ID[:12], c.Image, c.Status)
	}
	return nil
}
