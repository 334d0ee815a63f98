package web

import (
	"context"
	"fmt"

	"github.com/deemkeen/birdbridge/domain"
	"github.com/deemkeen/birdbridge/util"
)

const nodeInfoSchema = "http://nodeinfo.diaspora.software/ns/schema/"

type NodeInfoLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type NodeInfoLinks struct {
	Links []NodeInfoLink `json:"links"`
}

type NodeInfoSoftware struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Repository string `json:"repository,omitempty"`
}

type NodeInfoServices struct {
	Inbound  []string `json:"inbound"`
	Outbound []string `json:"outbound"`
}

type NodeInfoUsers struct {
	Total int `json:"total"`
}

type NodeInfoUsage struct {
	Users      NodeInfoUsers `json:"users"`
	LocalPosts int           `json:"localPosts"`
}

type NodeInfoMetadata struct {
	Email string `json:"email"`
}

type NodeInfo struct {
	Version           string           `json:"version"`
	Software          NodeInfoSoftware `json:"software"`
	Protocols         []string         `json:"protocols"`
	Services          NodeInfoServices `json:"services"`
	Usage             NodeInfoUsage    `json:"usage"`
	OpenRegistrations bool             `json:"openRegistrations"`
	Metadata          NodeInfoMetadata `json:"metadata"`
}

var nodeInfoVersions = map[string]string{
	"2.0.json": "2.0",
	"2.1.json": "2.1",
}

func (d *DiscoveryResolver) NodeInfoLinks() NodeInfoLinks {
	return NodeInfoLinks{Links: []NodeInfoLink{
		{Rel: nodeInfoSchema + "2.0", Href: fmt.Sprintf("https://%s/nodeinfo/2.0.json", d.domain)},
		{Rel: nodeInfoSchema + "2.1", Href: fmt.Sprintf("https://%s/nodeinfo/2.1.json", d.domain)},
	}}
}

// NodeInfo builds the document for a route segment like "2.1.json".
func (d *DiscoveryResolver) NodeInfo(ctx context.Context, segment string) (*NodeInfo, error) {
	version, ok := nodeInfoVersions[segment]
	if !ok {
		return nil, ErrNotFound
	}

	total, err := d.counter.CountFollowedAccounts(ctx)
	if err != nil {
		d.log.WithError(err).Warn("Counting accounts failed")
		d.metrics.IncLookupError("nodeinfo")
		return nil, ErrNotFound
	}

	info := &NodeInfo{
		Version: version,
		Software: NodeInfoSoftware{
			Name:    util.Name,
			Version: util.GetVersion(),
		},
		Protocols: []string{"activitypub"},
		Services:  NodeInfoServices{Inbound: []string{}, Outbound: []string{}},
		Usage: NodeInfoUsage{
			Users: NodeInfoUsers{Total: total},
		},
		OpenRegistrations: d.moderation.Mode(domain.ModerationFollower) != domain.ModerationWhiteListing,
		Metadata:          NodeInfoMetadata{Email: d.adminEmail},
	}
	if version == "2.1" {
		info.Software.Repository = util.Repository
	}
	return info, nil
}
