package exec

import (
	"context"

	"github.com/aleksaelezovic/trigosparql/pkg/rdf"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/eval"
)

// buildPathScan evaluates a property path pattern by a small BFS-based
// graph walk rather than a single store lookup: a path has no single
// index the store can answer directly, so it is expanded hop by hop
// against repeated QueryCurrent/QueryGraph calls instead.
func (x *Executor) buildPathScan(ctx context.Context, pattern ast.TriplePattern, graph ast.Term, outer eval.Frame) (RowIterator, error) {
	subj := resolveTerm(pattern.Subject, outer)
	obj := resolveTerm(pattern.Object, outer)
	pairs, err := x.matchPath(ctx, graph, pattern.Path, subj, obj)
	if err != nil {
		return nil, err
	}
	return &pathIterator{pattern: pattern, pairs: pairs, outer: outer}, nil
}

type pathIterator struct {
	pattern ast.TriplePattern
	pairs   [][2]ast.Term
	idx     int
	outer   eval.Frame
	frame   eval.Frame
}

func (it *pathIterator) Next(ctx context.Context) bool {
	for it.idx < len(it.pairs) {
		pair := it.pairs[it.idx]
		it.idx++
		frame := it.outer
		var ok bool
		if frame, ok = bindPosition(frame, it.pattern.Subject, pair[0]); !ok {
			continue
		}
		if frame, ok = bindPosition(frame, it.pattern.Object, pair[1]); !ok {
			continue
		}
		it.frame = frame
		return true
	}
	return false
}

func (it *pathIterator) Frame() eval.Frame { return it.frame }
func (it *pathIterator) Err() error        { return nil }
func (it *pathIterator) Close() error      { return nil }

// matchPath resolves a path pattern given the (already frame-resolved)
// subject/object terms, each either concrete or the unbound wildcard.
func (x *Executor) matchPath(ctx context.Context, graph ast.Term, path ast.PropertyPath, subj, obj ast.Term) ([][2]ast.Term, error) {
	switch {
	case !subj.IsUnbound() && !obj.IsUnbound():
		reached, err := x.walk(ctx, graph, subj, path, true)
		if err != nil {
			return nil, err
		}
		if _, ok := reached[obj.String()]; ok {
			return [][2]ast.Term{{subj, obj}}, nil
		}
		return nil, nil
	case !subj.IsUnbound():
		reached, err := x.walk(ctx, graph, subj, path, true)
		if err != nil {
			return nil, err
		}
		out := make([][2]ast.Term, 0, len(reached))
		for _, v := range reached {
			out = append(out, [2]ast.Term{subj, v})
		}
		return out, nil
	case !obj.IsUnbound():
		reached, err := x.walk(ctx, graph, obj, path, false)
		if err != nil {
			return nil, err
		}
		out := make([][2]ast.Term, 0, len(reached))
		for _, v := range reached {
			out = append(out, [2]ast.Term{v, obj})
		}
		return out, nil
	default:
		universe, err := x.universe(ctx, graph)
		if err != nil {
			return nil, err
		}
		var out [][2]ast.Term
		for _, candidate := range universe {
			reached, err := x.walk(ctx, graph, candidate, path, true)
			if err != nil {
				return nil, err
			}
			for _, v := range reached {
				out = append(out, [2]ast.Term{candidate, v})
			}
		}
		return out, nil
	}
}

// universe collects every distinct subject/object term in scope, the
// candidate set for a path whose both ends are unbound.
func (x *Executor) universe(ctx context.Context, graph ast.Term) ([]ast.Term, error) {
	it, err := x.queryGraph(ctx, graph, ast.Term{}, ast.Term{}, ast.Term{})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	seen := make(map[string]ast.Term)
	for it.Next() {
		s, _, o := it.Triple()
		seen[s.String()] = s
		seen[o.String()] = o
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	out := make([]ast.Term, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	return out, nil
}

// walk expands path one structural level from from, in forward direction
// when forward is true (subject-to-object) or reverse when false.
func (x *Executor) walk(ctx context.Context, graph ast.Term, from ast.Term, path ast.PropertyPath, forward bool) (map[string]ast.Term, error) {
	switch path.Kind {
	case ast.PathIRI:
		return x.oneHop(ctx, graph, from, path.IRI, forward)
	case ast.PathInverse:
		return x.walk(ctx, graph, from, *path.Sub, !forward)
	case ast.PathGrouped:
		return x.walk(ctx, graph, from, *path.Sub, forward)
	case ast.PathSequence:
		// Walking backward, the right-hand step is the first one taken.
		first, second := *path.Left, *path.Right
		if !forward {
			first, second = second, first
		}
		mid, err := x.walk(ctx, graph, from, first, forward)
		if err != nil {
			return nil, err
		}
		out := make(map[string]ast.Term)
		for _, m := range mid {
			next, err := x.walk(ctx, graph, m, second, forward)
			if err != nil {
				return nil, err
			}
			for k, v := range next {
				out[k] = v
			}
		}
		return out, nil
	case ast.PathAlternative:
		left, err := x.walk(ctx, graph, from, *path.Left, forward)
		if err != nil {
			return nil, err
		}
		right, err := x.walk(ctx, graph, from, *path.Right, forward)
		if err != nil {
			return nil, err
		}
		for k, v := range right {
			left[k] = v
		}
		return left, nil
	case ast.PathZeroOrOne:
		out, err := x.walk(ctx, graph, from, *path.Sub, forward)
		if err != nil {
			return nil, err
		}
		out[from.String()] = from
		return out, nil
	case ast.PathOneOrMore:
		return x.oneOrMore(ctx, graph, from, path.Sub, forward)
	case ast.PathZeroOrMore:
		out, err := x.oneOrMore(ctx, graph, from, path.Sub, forward)
		if err != nil {
			return nil, err
		}
		out[from.String()] = from
		return out, nil
	case ast.PathNegatedSet:
		return x.negatedHop(ctx, graph, from, path.Members, path.NegatedInverse, forward)
	default:
		return nil, &Error{Detail: "exec: unsupported property path kind"}
	}
}

// oneOrMore computes the set of nodes reachable from start by one or
// more applications of sub, via breadth-first expansion with a
// seen-for-queue set that prevents revisiting a node's own out-edges
// twice but still reports start itself if some cycle leads back to it.
func (x *Executor) oneOrMore(ctx context.Context, graph ast.Term, start ast.Term, sub *ast.PropertyPath, forward bool) (map[string]ast.Term, error) {
	reached := make(map[string]ast.Term)
	queued := map[string]bool{start.String(): true}
	queue := []ast.Term{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		next, err := x.walk(ctx, graph, cur, *sub, forward)
		if err != nil {
			return nil, err
		}
		for k, v := range next {
			reached[k] = v
			if !queued[k] {
				queued[k] = true
				queue = append(queue, v)
			}
		}
	}
	return reached, nil
}

// oneHop matches a single iri-predicate edge; forward walks
// (from, iri, ?x), otherwise (?x, iri, from).
func (x *Executor) oneHop(ctx context.Context, graph ast.Term, from ast.Term, iri *rdf.NamedNode, forward bool) (map[string]ast.Term, error) {
	pred := ast.NewRDFTerm(iri, 0)
	var s, p, o ast.Term
	p = pred
	if forward {
		s, o = from, ast.Term{}
	} else {
		s, o = ast.Term{}, from
	}
	it, err := x.queryGraph(ctx, graph, s, p, o)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	out := make(map[string]ast.Term)
	for it.Next() {
		subj, _, obj := it.Triple()
		var other ast.Term
		if forward {
			other = obj
		} else {
			other = subj
		}
		out[other.String()] = other
	}
	return out, it.Err()
}

// negatedHop matches `!(iri1|^iri2|...)`: an edge in either direction
// whose predicate isn't excluded for that direction.
func (x *Executor) negatedHop(ctx context.Context, graph ast.Term, from ast.Term, members []*rdf.NamedNode, negatedInverse []bool, forward bool) (map[string]ast.Term, error) {
	excludeDirect := make(map[string]bool)
	excludeInverse := make(map[string]bool)
	for i, m := range members {
		inverse := i < len(negatedInverse) && negatedInverse[i]
		if inverse {
			excludeInverse[m.IRI] = true
		} else {
			excludeDirect[m.IRI] = true
		}
	}
	if !forward {
		excludeDirect, excludeInverse = excludeInverse, excludeDirect
	}

	out := make(map[string]ast.Term)
	fwdIt, err := x.queryGraph(ctx, graph, from, ast.Term{}, ast.Term{})
	if err != nil {
		return nil, err
	}
	defer fwdIt.Close()
	for fwdIt.Next() {
		_, p, o := fwdIt.Triple()
		if p.RDF == nil || excludeDirect[iriOf(p)] {
			continue
		}
		out[o.String()] = o
	}
	if err := fwdIt.Err(); err != nil {
		return nil, err
	}

	invIt, err := x.queryGraph(ctx, graph, ast.Term{}, ast.Term{}, from)
	if err != nil {
		return nil, err
	}
	defer invIt.Close()
	for invIt.Next() {
		s, p, _ := invIt.Triple()
		if p.RDF == nil || excludeInverse[iriOf(p)] {
			continue
		}
		out[s.String()] = s
	}
	return out, invIt.Err()
}

func iriOf(t ast.Term) string {
	if nn, ok := t.RDF.(*rdf.NamedNode); ok {
		return nn.IRI
	}
	return ""
}
