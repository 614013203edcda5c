package bitvec

// Matcher tests rule conditions against one world state.
//
// The world is stored complemented (Yes->No code, No->Yes code,
// DontCare->both bits) so a condition matches iff it shares no set bit
// with the stored words. That turns the per-position comparison into one
// AND per word with an early exit.
type Matcher struct {
	n   int
	inv []uint32
}

// NewMatcher prepares a matcher for the given world state.
func NewMatcher(world *Vector) Matcher {
	m := Matcher{n: world.n, inv: make([]uint32, len(world.words))}
	m.Reset(world)
	return m
}

// Reset reloads the matcher with a new world state of the same length,
// reusing its storage.
func (m *Matcher) Reset(world *Vector) {
	if len(m.inv) != len(world.words) {
		m.inv = make([]uint32, len(world.words))
	}
	m.n = world.n
	for i, w := range world.words {
		m.inv[i] = ^w & world.validMask(i)
	}
}

// Matches reports whether every specified position of cond agrees with
// the world state.
func (m Matcher) Matches(cond *Vector) bool {
	if cond.n != m.n {
		panic("bitvec: matcher length mismatch")
	}
	for i, w := range cond.words {
		if w&m.inv[i] != 0 {
			return false
		}
	}
	return true
}
