// ============================================================================
// FILE: internal/strategy/resolver.go
// PURPOSE: Maps group members to variants and metadata overlays at publish time
// ============================================================================

package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"

	"github.com/xipebhui/autopublish/internal/application/common"
	"github.com/xipebhui/autopublish/internal/models"
)

// Metadata is the concrete publish bundle produced for one (task, member).
type Metadata struct {
	AccountID    uuid.UUID
	VariantName  string
	IsControl    bool
	Title        string
	Description  string
	Tags         []string
	ThumbnailRef string
	VideoRef     string
	Privacy      string
}

// CycleCounter supplies the per-member round-robin position.
type CycleCounter interface {
	CountSuccessfulPublishes(ctx context.Context, configID, accountID uuid.UUID) (int, error)
}

// Resolver applies a strategy's assignments to a group's members.
type Resolver struct {
	cycles CycleCounter
	logger common.Logger
}

// NewResolver creates a variant resolver.
func NewResolver(cycles CycleCounter, logger common.Logger) *Resolver {
	return &Resolver{cycles: cycles, logger: logger}
}

// Resolve builds one metadata bundle per member. With no strategy every
// member gets the base metadata from the pipeline result. Variant choice is
// pinned here: the caller persists VariantName on each publish task, so
// later membership changes never rewrite past assignments.
func (r *Resolver) Resolve(
	ctx context.Context,
	cfg *models.PublishConfig,
	strat *models.Strategy,
	assignments []models.StrategyAssignment,
	members []models.GroupMember,
	task *models.AutoPublishTask,
	resultJSON []byte,
) ([]Metadata, error) {
	base := BaseMetadata(resultJSON)
	if base.VideoRef == "" {
		return nil, common.Permanent("missing_video", "pipeline result carries no video artifact", nil)
	}

	out := make([]Metadata, 0, len(members))
	if strat == nil || len(assignments) == 0 {
		for _, m := range members {
			meta := base
			meta.AccountID = m.AccountID
			out = append(out, meta)
		}
		return out, nil
	}

	switch strat.Type {
	case models.StrategyRoundRobin:
		for rank, m := range members {
			cycle := 0
			if r.cycles != nil {
				c, err := r.cycles.CountSuccessfulPublishes(ctx, cfg.ID, m.AccountID)
				if err == nil {
					cycle = c
				}
			}
			a := assignments[(rank+cycle)%len(assignments)]
			out = append(out, applyOverlay(base, m.AccountID, &a, resultJSON))
		}

	case models.StrategyWeighted:
		for _, m := range members {
			a := pickWeighted(assignments, task.ID, m.AccountID)
			out = append(out, applyOverlay(base, m.AccountID, a, resultJSON))
		}

	case models.StrategyABTest:
		control := controlAssignment(assignments)
		if control == nil {
			return nil, common.BadRequest("ab_control_missing", "ab_test strategy has no control variant")
		}
		haveControl := false
		for _, m := range members {
			a := pickWeighted(assignments, task.ID, m.AccountID)
			if a.IsControl {
				haveControl = true
			}
			out = append(out, applyOverlay(base, m.AccountID, a, resultJSON))
		}
		// Each cohort keeps at least one control arm when it has more than
		// one member, so every experiment reads against a baseline.
		if !haveControl && len(members) > 1 {
			out[0] = applyOverlay(base, members[0].AccountID, control, resultJSON)
		}

	default:
		return nil, common.BadRequest("strategy_type_invalid", fmt.Sprintf("unknown strategy type %q", strat.Type))
	}
	return out, nil
}

// pickWeighted samples proportionally to weight, seeded from the
// (task, member) pair so the same inputs always resolve identically.
func pickWeighted(assignments []models.StrategyAssignment, taskID, accountID uuid.UUID) *models.StrategyAssignment {
	total := 0
	for i := range assignments {
		w := assignments[i].Weight
		if w <= 0 {
			w = 1
		}
		total += w
	}
	h := fnv.New64a()
	h.Write([]byte(taskID.String()))
	h.Write([]byte("|"))
	h.Write([]byte(accountID.String()))
	roll := int(h.Sum64() % uint64(total))
	for i := range assignments {
		w := assignments[i].Weight
		if w <= 0 {
			w = 1
		}
		if roll < w {
			return &assignments[i]
		}
		roll -= w
	}
	return &assignments[len(assignments)-1]
}

func controlAssignment(assignments []models.StrategyAssignment) *models.StrategyAssignment {
	for i := range assignments {
		if assignments[i].IsControl {
			return &assignments[i]
		}
	}
	return nil
}

// variantPayload is the overlay a variant contributes.
type variantPayload struct {
	TitleTemplate       string   `json:"title_template,omitempty"`
	DescriptionTemplate string   `json:"description_template,omitempty"`
	Tags                []string `json:"tags,omitempty"`
	ThumbnailRef        string   `json:"thumbnail_ref,omitempty"`
	Privacy             string   `json:"privacy,omitempty"`
}

// applyOverlay renders a variant's overlay on top of the base metadata.
func applyOverlay(base Metadata, accountID uuid.UUID, a *models.StrategyAssignment, resultJSON []byte) Metadata {
	meta := base
	meta.AccountID = accountID
	meta.VariantName = a.VariantName
	meta.IsControl = a.IsControl

	if !a.Payload.Valid {
		return meta
	}
	var p variantPayload
	if err := json.Unmarshal(a.Payload.RawMessage, &p); err != nil {
		return meta
	}
	if p.TitleTemplate != "" {
		meta.Title = RenderTemplate(p.TitleTemplate, resultJSON)
	}
	if p.DescriptionTemplate != "" {
		meta.Description = RenderTemplate(p.DescriptionTemplate, resultJSON)
	}
	if len(p.Tags) > 0 {
		meta.Tags = mergeTags(meta.Tags, p.Tags)
	}
	if p.ThumbnailRef != "" {
		meta.ThumbnailRef = p.ThumbnailRef
	}
	if p.Privacy != "" {
		meta.Privacy = p.Privacy
	}
	return meta
}

func mergeTags(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, t := range append(append([]string{}, base...), extra...) {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
