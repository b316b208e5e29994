// Package projectinfo gathers a project's regions, zones, networks and
// subnetworks through the provider CLI.
package projectinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/ormasoftchile/gcloud-commander/pkg/providers"
)

// Region is a compute region and its zone names.
type Region struct {
	Name  string   `json:"name"`
	Zones []string `json:"zones"`
}

// Subnetwork is a subnet of a network.
type Subnetwork struct {
	Name  string `json:"name"`
	Range string `json:"range"`
}

// Network is a VPC network with its subnetworks.
type Network struct {
	Name        string       `json:"name"`
	IPv4Range   string       `json:"ipv4Range"`
	Subnetworks []Subnetwork `json:"subnetworks"`
}

// ProjectInfo is the infrastructure overview of a project.
type ProjectInfo struct {
	Regions  []Region  `json:"regions"`
	Networks []Network `json:"networks"`
}

type regionJSON struct {
	Name  string   `json:"name"`
	Zones []string `json:"zones"`
}

type networkJSON struct {
	Name      string `json:"name"`
	IPv4Range string `json:"IPv4Range"`
}

type subnetJSON struct {
	Name        string `json:"name"`
	IPCidrRange string `json:"ipCidrRange"`
	Network     string `json:"network"`
}

// NetworkURL is the self link subnets use to reference their network.
func NetworkURL(project, network string) string {
	return fmt.Sprintf("https://www.googleapis.com/compute/v1/projects/%s/global/networks/%s", project, network)
}

// Fetch runs the three list commands concurrently and assembles the result.
// Regions, zones, networks and subnetworks are sorted by name.
func Fetch(ctx context.Context, exec providers.CommandExecutor, project string) (*ProjectInfo, error) {
	project = strings.TrimSpace(project)
	if project == "" {
		return nil, errors.New("project ID is required")
	}

	var (
		regions  []regionJSON
		networks []networkJSON
		subnets  []subnetJSON
	)
	queries := []struct {
		command string
		into    any
	}{
		{fmt.Sprintf(`gcloud compute regions list --project=%s --format="json(name,zones)"`, project), &regions},
		{fmt.Sprintf(`gcloud compute networks list --project=%s --format="json(name,IPv4Range)"`, project), &networks},
		{fmt.Sprintf(`gcloud compute networks subnets list --project=%s --format="json(name,ipCidrRange,network)"`, project), &subnets},
	}

	errs := make([]error, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = runJSON(ctx, exec, q.command, q.into)
		}()
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	info := &ProjectInfo{Regions: []Region{}, Networks: []Network{}}
	for _, r := range regions {
		zones := make([]string, 0, len(r.Zones))
		for _, z := range r.Zones {
			zones = append(zones, path.Base(z))
		}
		sort.Strings(zones)
		info.Regions = append(info.Regions, Region{Name: r.Name, Zones: zones})
	}
	sort.Slice(info.Regions, func(i, j int) bool { return info.Regions[i].Name < info.Regions[j].Name })

	byURL := make(map[string]*Network, len(networks))
	for _, n := range networks {
		rng := n.IPv4Range
		if rng == "" {
			rng = "N/A"
		}
		byURL[NetworkURL(project, n.Name)] = &Network{Name: n.Name, IPv4Range: rng, Subnetworks: []Subnetwork{}}
	}
	for _, s := range subnets {
		if n, ok := byURL[s.Network]; ok {
			n.Subnetworks = append(n.Subnetworks, Subnetwork{Name: s.Name, Range: s.IPCidrRange})
		}
	}
	for _, n := range byURL {
		sort.Slice(n.Subnetworks, func(i, j int) bool { return n.Subnetworks[i].Name < n.Subnetworks[j].Name })
		info.Networks = append(info.Networks, *n)
	}
	sort.Slice(info.Networks, func(i, j int) bool { return info.Networks[i].Name < info.Networks[j].Name })
	return info, nil
}

func runJSON(ctx context.Context, exec providers.CommandExecutor, command string, into any) error {
	res, err := exec.Execute(ctx, command)
	if err == nil {
		err = providers.CheckResult(res)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}
	if err := json.Unmarshal(res.Stdout, into); err != nil {
		return fmt.Errorf("%s: parse output: %w", command, err)
	}
	return nil
}
