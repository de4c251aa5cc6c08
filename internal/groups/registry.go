// Package groups exposes the read-only registry of organizers whose
// feeds are aggregated. Groups are created and approved by an admin
// workflow elsewhere; the engine only lists the active ones.
package groups

import (
	"context"

	"calsync/internal/config"
	"calsync/internal/model"
)

// Registry lists the groups eligible for a synchronization pass.
type Registry interface {
	// ListActive returns active groups that have a feed URL configured.
	ListActive(ctx context.Context) ([]model.Group, error)
}

// Static serves groups from the YAML config file. Useful for small
// deployments and tests.
type Static struct {
	groups []model.Group
}

func NewStatic(cfgs []config.GroupConfig) *Static {
	gs := make([]model.Group, 0, len(cfgs))
	for _, c := range cfgs {
		gs = append(gs, model.Group{
			ID:          c.ID,
			Name:        c.Name,
			FeedURL:     c.FeedURL,
			FallbackURL: c.FallbackURL,
			URLOverride: c.URLOverride,
			Website:     c.Website,
			Active:      c.Active,
		})
	}
	return &Static{groups: gs}
}

func (s *Static) ListActive(_ context.Context) ([]model.Group, error) {
	return FilterActive(s.groups), nil
}

// FilterActive drops inactive groups and groups with no feed URL, which
// are skipped before any fetch happens.
func FilterActive(gs []model.Group) []model.Group {
	out := make([]model.Group, 0, len(gs))
	for _, g := range gs {
		if !g.Active || g.FeedURL == "" {
			continue
		}
		out = append(out, g)
	}
	return out
}
