package maze

import (
	"hash/fnv"
	"math/rand"
)

// SpanningTreeFactory is the default Factory implementation. It carves
// a perfect maze (exactly one path between any two cells) using a
// randomized depth-first spanning tree over the grid graph, seeded
// deterministically from the string seed.
type SpanningTreeFactory struct{}

// NewSpanningTreeFactory returns the default maze generator.
func NewSpanningTreeFactory() *SpanningTreeFactory {
	return &SpanningTreeFactory{}
}

// Generate implements Factory.
func (f *SpanningTreeFactory) Generate(size int, seed string) (*State, error) {
	supported := false
	for _, s := range []int{20, 40} {
		if s == size {
			supported = true
		}
	}
	if !supported {
		return nil, &ErrUnsupportedSize{Size: size}
	}

	state := &State{
		Size:  size,
		Seed:  seed,
		Cells: make([]MazeCell, size*size),
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			state.Cells[y*size+x] = MazeCell{
				X: x, Y: y,
				Walls: Walls{Top: true, Right: true, Bottom: true, Left: true},
			}
		}
	}

	rng := rand.New(rand.NewSource(seedToInt64(seed)))
	carveSpanningTree(state, rng)

	state.Start = Cell{X: 0, Y: 0}
	state.Goal = farthestCellFrom(state, state.Start)
	if state.Goal == state.Start {
		// Degenerate 1x1 case cannot occur for size in {20,40}, but
		// guard the invariant "start != goal" regardless of future sizes.
		state.Goal = Cell{X: size - 1, Y: size - 1}
	}

	return state, nil
}

// seedToInt64 derives a deterministic int64 from an arbitrary seed string.
func seedToInt64(seed string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	return int64(h.Sum64())
}

// carveSpanningTree performs an iterative randomized depth-first carve,
// opening the wall between the current cell and a randomly chosen
// unvisited neighbour until every cell has been visited.
func carveSpanningTree(s *State, rng *rand.Rand) {
	visited := make([]bool, s.Size*s.Size)
	idx := func(x, y int) int { return y*s.Size + x }

	stack := []Cell{{X: 0, Y: 0}}
	visited[idx(0, 0)] = true

	sides := []Side{SideTop, SideRight, SideBottom, SideLeft}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]

		order := rng.Perm(4)
		advanced := false
		for _, oi := range order {
			side := sides[oi]
			nx, ny := Neighbor(cur.X, cur.Y, side)
			if !s.InBounds(nx, ny) || visited[idx(nx, ny)] {
				continue
			}
			s.SetWall(cur.X, cur.Y, side, false)
			visited[idx(nx, ny)] = true
			stack = append(stack, Cell{X: nx, Y: ny})
			advanced = true
			break
		}
		if !advanced {
			stack = stack[:len(stack)-1]
		}
	}
}

// farthestCellFrom does a BFS from `from` over open edges and returns
// the last cell visited in BFS order, which for a spanning tree is a
// cell maximally distant from the start — a reasonable goal placement.
func farthestCellFrom(s *State, from Cell) Cell {
	visited := make([]bool, s.Size*s.Size)
	idx := func(x, y int) int { return y*s.Size + x }

	queue := []Cell{from}
	visited[idx(from.X, from.Y)] = true
	last := from

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		last = cur

		for _, side := range []Side{SideTop, SideRight, SideBottom, SideLeft} {
			if s.HasWall(cur.X, cur.Y, side) {
				continue
			}
			nx, ny := Neighbor(cur.X, cur.Y, side)
			if !s.InBounds(nx, ny) || visited[idx(nx, ny)] {
				continue
			}
			visited[idx(nx, ny)] = true
			queue = append(queue, Cell{X: nx, Y: ny})
		}
	}

	return last
}

// Reachable returns the set of cells reachable from `from` over open
// edges, keyed by y*size+x. Used by EditValidator to check the
// connectivity invariant after a hypothetical wall mutation.
func Reachable(s *State, from Cell) map[int]bool {
	idx := func(x, y int) int { return y*s.Size + x }
	visited := map[int]bool{idx(from.X, from.Y): true}
	queue := []Cell{from}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, side := range []Side{SideTop, SideRight, SideBottom, SideLeft} {
			if s.HasWall(cur.X, cur.Y, side) {
				continue
			}
			nx, ny := Neighbor(cur.X, cur.Y, side)
			if !s.InBounds(nx, ny) {
				continue
			}
			key := idx(nx, ny)
			if visited[key] {
				continue
			}
			visited[key] = true
			queue = append(queue, Cell{X: nx, Y: ny})
		}
	}

	return visited
}

// IsConnected reports whether goal is reachable from start.
func IsConnected(s *State) bool {
	reached := Reachable(s, s.Start)
	key := s.Goal.Y*s.Size + s.Goal.X
	return reached[key]
}

// Clone returns a deep copy of the maze state, used by the validator
// to test a hypothetical edit without mutating live state.
func (s *State) Clone() *State {
	cp := *s
	cp.Cells = make([]MazeCell, len(s.Cells))
	copy(cp.Cells, s.Cells)
	return &cp
}
