package subconscious

import (
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lazypower/lattice/internal/engine"
	"github.com/lazypower/lattice/internal/protocol"
	"github.com/lazypower/lattice/internal/store"
)

const (
	actor           = "subconscious"
	maxAmount       = 1.0
	defaultWeight   = 0.5
	maxNewRelations = 5
)

// filter keeps the proposals that are safe to apply to snap: mutating
// operations only, node ids that exist, no duplicate nodes or edges, bounded
// amounts and at most maxOps calls.
func filter(snap *engine.Snapshot, proposals []protocol.Call, maxOps int) []protocol.Call {
	f := &filterState{
		snap:   snap,
		hashes: map[string]bool{},
		edges:  map[edgeKey]bool{},
	}
	for _, n := range snap.Nodes {
		f.hashes[n.ContentHash] = true
	}

	var out []protocol.Call
	for _, c := range proposals {
		if maxOps > 0 && len(out) >= maxOps {
			break
		}
		op, err := protocol.DecodeCall(c)
		if err != nil {
			log.Debug().Err(err).Str("op", c.Op).Msg("subconscious: drop invalid proposal")
			continue
		}
		if !f.keep(op) {
			log.Debug().Str("op", c.Op).Msg("subconscious: drop inconsistent proposal")
			continue
		}
		call, err := protocol.NewCall(op.Name(), op)
		if err != nil {
			continue
		}
		out = append(out, call)
	}
	return out
}

type edgeKey struct {
	source, target int64
	relation       string
}

type filterState struct {
	snap   *engine.Snapshot
	hashes map[string]bool
	edges  map[edgeKey]bool
}

func (f *filterState) exists(id int64) bool {
	_, ok := f.snap.Node(id)
	return ok
}

// keep reports whether op survives, adjusting it in place where a smaller
// version of it is still consistent.
func (f *filterState) keep(op protocol.Operation) bool {
	switch o := op.(type) {
	case *protocol.Remember:
		o.Content = truncateClean(strings.TrimSpace(o.Content), maxContentChars)
		hash := store.ContentHash(o.Content)
		if o.Content == "" || f.hashes[hash] {
			return false
		}
		f.hashes[hash] = true
		o.RelatedTo = slices.DeleteFunc(o.RelatedTo, func(id int64) bool { return !f.exists(id) })
		if len(o.RelatedTo) > maxNewRelations {
			o.RelatedTo = o.RelatedTo[:maxNewRelations]
		}
		if o.SourceType == "" {
			o.SourceType = actor
		}
		return true

	case *protocol.Relate:
		if o.SourceID == o.TargetID || !f.exists(o.SourceID) || !f.exists(o.TargetID) {
			return false
		}
		key := edgeKey{o.SourceID, o.TargetID, o.RelationType}
		if f.edges[key] || f.snap.HasEdge(o.SourceID, o.TargetID, o.RelationType) {
			return false
		}
		f.edges[key] = true
		if o.Weight == nil {
			w := defaultWeight
			o.Weight = &w
		}
		return true

	case *protocol.Observe:
		o.Content = truncateClean(strings.TrimSpace(o.Content), maxContentChars)
		if o.Content == "" {
			return false
		}
		if o.RelatedNodeID != nil && !f.exists(*o.RelatedNodeID) {
			o.RelatedNodeID = nil
		}
		o.Actor = actor
		return true

	case *protocol.Forget:
		if !f.exists(o.NodeID) {
			return false
		}
		o.Amount = bounded(o.Amount)
		return true

	case *protocol.Reinforce:
		known := f.snap.Tags()
		o.Tags = slices.DeleteFunc(o.Tags, func(t string) bool {
			return !slices.Contains(known, strings.ToLower(strings.TrimSpace(t)))
		})
		o.NodeIDs = slices.DeleteFunc(o.NodeIDs, func(id int64) bool { return !f.exists(id) })
		if len(o.Tags) == 0 && len(o.NodeIDs) == 0 {
			return false
		}
		o.Amount = bounded(o.Amount)
		return true
	}
	// Read-only operations change nothing worth proposing.
	return false
}

func bounded(amount *float64) *float64 {
	if amount == nil || *amount <= maxAmount {
		return amount
	}
	v := maxAmount
	return &v
}
