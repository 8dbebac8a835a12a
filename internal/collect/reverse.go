package collect

import (
	"log/slog"

	"usd-instancer/internal/logging"
	"usd-instancer/internal/meshhash"
	"usd-instancer/internal/scene"
)

type candidate struct {
	owner  *scene.Node
	key    string
	meshes []*scene.Node
}

// reverse infers families of duplicated objects from their names.
type reverse struct {
	m          *Model
	logger     *slog.Logger
	candidates []*candidate
	byOwner    map[*scene.Node]*candidate
}

func newReverse(m *Model, logger *slog.Logger) *reverse {
	return &reverse{m: m, logger: logger, byOwner: make(map[*scene.Node]*candidate)}
}

func (r *reverse) visit(n *scene.Node) bool {
	if n.Specifier == scene.SpecClass {
		return false
	}
	if !n.IsA(TypeMesh) {
		return true
	}
	own := owner(n)
	c := r.byOwner[own]
	if c == nil {
		c = &candidate{owner: own, key: groupKey(n)}
		r.byOwner[own] = c
		r.candidates = append(r.candidates, c)
	}
	c.meshes = append(c.meshes, n)
	return true
}

func (r *reverse) finish() {
	counts := map[string]int{}
	for _, c := range r.candidates {
		counts[c.key]++
	}
	var familyOwners []*scene.Node
	for _, c := range r.candidates {
		if counts[c.key] > 1 {
			familyOwners = append(familyOwners, c.owner)
		}
	}

	type subKey struct {
		key    string
		hash   meshhash.Sum
		anchor *Anchor
	}
	var (
		kept    []*candidate
		order   []subKey
		members = map[subKey][]*candidate{}
	)
	for _, c := range r.candidates {
		if nestedInFamily(c.owner, familyOwners) {
			r.logger.Debug("nested in family, kept with prototype", logging.Path(c.owner.Path()))
			continue
		}
		kept = append(kept, c)
		if counts[c.key] < 2 {
			continue
		}
		k := subKey{key: c.key, hash: ownerHash(c.owner), anchor: r.m.anchorFor(c.owner, nil)}
		if _, ok := members[k]; !ok {
			order = append(order, k)
		}
		members[k] = append(members[k], c)
	}

	grouped := map[*candidate]bool{}
	for _, k := range order {
		cs := members[k]
		if len(cs) < 2 {
			continue
		}
		first := cs[0]
		g := &Group{
			Key:       k.key,
			Hint:      k.key,
			Prototype: first.owner,
			Mesh:      first.meshes[0],
			Anchor:    k.anchor,
			FaceCount: faceCount(first.owner),
			Hash:      k.hash,
		}
		for _, c := range cs {
			g.Members = append(g.Members, Instance{
				Node:  c.owner,
				Name:  c.owner.Name,
				World: scene.WorldTransform(c.owner),
			})
			r.m.claim(c.owner)
			grouped[c] = true
		}
		r.m.Groups = append(r.m.Groups, g)
		r.logger.Debug("family grouped",
			logging.String("key", k.key),
			logging.String("hash", k.hash.Short()),
			logging.Int("members", len(cs)),
		)
	}

	// A member sitting directly in its container is emitted by the
	// instancer, not as one of the anchor's own meshes.
	for _, a := range r.m.Anchors {
		own := a.Meshes[:0]
		for _, mesh := range a.Meshes {
			if c := r.byOwner[mesh]; c == nil || !grouped[c] {
				own = append(own, mesh)
			}
		}
		a.Meshes = own
	}

	for _, c := range kept {
		if !grouped[c] {
			r.m.addObject(c.owner)
		}
	}
}

// nestedInFamily reports whether n lies beneath the owner of a family member.
func nestedInFamily(n *scene.Node, owners []*scene.Node) bool {
	for _, o := range owners {
		if n != o && n.HasAncestor(o) {
			return true
		}
	}
	return false
}

// ownerHash digests every mesh in the owner's subtree, in document order.
func ownerHash(own *scene.Node) meshhash.Sum {
	var sums []meshhash.Sum
	own.Walk(func(c *scene.Node) bool {
		if c.IsA(TypeMesh) {
			sums = append(sums, meshhash.Of(c, nil))
		}
		return true
	})
	if len(sums) == 0 {
		return meshhash.Sum{}
	}
	return meshhash.Combine(sums...)
}
