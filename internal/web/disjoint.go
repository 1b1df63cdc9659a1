package web

// DisjointSet is a union-find forest over webs, addressed by Web.ID. Webs
// live in the set's arena; the ID of a web is its arena index.
type DisjointSet struct {
	webs   []*Web
	parent []int
	rank   []int
}

// Add stores w in the arena as a singleton set and assigns its ID.
func (d *DisjointSet) Add(w *Web) {
	w.ID = len(d.webs)
	d.webs = append(d.webs, w)
	d.parent = append(d.parent, w.ID)
	d.rank = append(d.rank, 0)
}

// Len returns the number of webs in the arena.
func (d *DisjointSet) Len() int {
	return len(d.webs)
}

// Web returns the web with the given ID.
func (d *DisjointSet) Web(id int) *Web {
	return d.webs[id]
}

// Find returns the ID of the representative of id's set, compressing the
// path on the way.
func (d *DisjointSet) Find(id int) int {
	if d.parent[id] != id {
		d.parent[id] = d.Find(d.parent[id])
	}
	return d.parent[id]
}

// Canonical returns the representative web of w.
func (d *DisjointSet) Canonical(w *Web) *Web {
	return d.webs[d.Find(w.ID)]
}

// Union merges the sets of a and b by rank and returns the new root. The
// absorbed root's range and spill cost are folded into the surviving root
// here, once. On equal ranks b's root survives.
func (d *DisjointSet) Union(a, b int) int {
	x, y := d.Find(a), d.Find(b)
	if x == y {
		return x
	}
	if d.rank[x] > d.rank[y] {
		x, y = y, x
	} else if d.rank[x] == d.rank[y] {
		d.rank[y]++
	}
	// y is the surviving root.
	d.parent[x] = y
	d.webs[y].absorb(d.webs[x])
	return y
}
