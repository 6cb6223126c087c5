package annotation

import "annotation-backend/internal/engine"

// resolver hands out per-document node ids, starting at 1, in the order the
// nodes are first met. A head seen before its own node keeps the id it got
// then.
type resolver struct {
	cas  *engine.CAS
	ids  map[engine.DependencyAnnotation]int
	next int
}

func newResolver(cas *engine.CAS) *resolver {
	return &resolver{cas: cas, ids: make(map[engine.DependencyAnnotation]int)}
}

func (r *resolver) id(node engine.DependencyAnnotation) int {
	if id, ok := r.ids[node]; ok {
		return id
	}
	r.next++
	r.ids[node] = r.next
	return r.next
}

// resolve assigns the node's id and copies its head, if any.
func (r *resolver) resolve(node engine.DependencyAnnotation) (int, *Dependent) {
	id := r.id(node)
	head := node.Head()
	if head == nil {
		return id, nil
	}
	return id, &Dependent{
		ID:    r.id(head),
		Begin: head.Begin(),
		End:   head.End(),
		Text:  r.cas.CoveredText(head),
	}
}
