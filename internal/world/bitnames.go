package world

// bitnames.go — the fixed table of market-state predicates.
//
// The order below is the order Update writes bits in. Agents resolve
// their condition bits by name through BitNumber, so the table is the
// contract between the world and every rule population.

import "fmt"

// Widths of the price and dividend moving averages.
var MAWidths = [NumMAs]int{5, 20, 100, 500}

// Ratio breakpoints for the dividend/baseline and price*intrate/dividend bits.
var Ratios = [NumRatios]float64{0.25, 0.5, 0.75, 0.875, 1.0, 1.125, 1.25, 1.5, 2.0, 4.0}

const (
	NumMAs         = 4
	NumRatios      = 10
	UpDownLookback = 5
	MaxHistory     = 500
	NumWorldBits   = 61
)

type bitName struct {
	name string
	desc string
}

var bitTable = [NumWorldBits]bitName{
	{"on", "dummy bit -- always on"},
	{"off", "dummy bit -- always off"},
	{"random", "random on or off"},

	{"dup", "dividend went up this period"},
	{"dup1", "dividend went up one period ago"},
	{"dup2", "dividend went up two periods ago"},
	{"dup3", "dividend went up three periods ago"},
	{"dup4", "dividend went up four periods ago"},

	{"d5up", "5-period MA of dividend went up"},
	{"d20up", "20-period MA of dividend went up"},
	{"d100up", "100-period MA of dividend went up"},
	{"d500up", "500-period MA of dividend went up"},

	{"d>d5", "dividend > 5-period MA"},
	{"d>d20", "dividend > 20-period MA"},
	{"d>d100", "dividend > 100-period MA"},
	{"d>d500", "dividend > 500-period MA"},

	{"d5>d20", "dividend: 5-period MA > 20-period MA"},
	{"d5>d100", "dividend: 5-period MA > 100-period MA"},
	{"d5>d500", "dividend: 5-period MA > 500-period MA"},
	{"d20>d100", "dividend: 20-period MA > 100-period MA"},
	{"d20>d500", "dividend: 20-period MA > 500-period MA"},
	{"d100>d500", "dividend: 100-period MA > 500-period MA"},

	{"d/md>1/4", "dividend/mean dividend > 1/4"},
	{"d/md>1/2", "dividend/mean dividend > 1/2"},
	{"d/md>3/4", "dividend/mean dividend > 3/4"},
	{"d/md>7/8", "dividend/mean dividend > 7/8"},
	{"d/md>1", "dividend/mean dividend > 1"},
	{"d/md>9/8", "dividend/mean dividend > 9/8"},
	{"d/md>5/4", "dividend/mean dividend > 5/4"},
	{"d/md>3/2", "dividend/mean dividend > 3/2"},
	{"d/md>2", "dividend/mean dividend > 2"},
	{"d/md>4", "dividend/mean dividend > 4"},

	{"pr/d>1/4", "price*interest/dividend > 1/4"},
	{"pr/d>1/2", "price*interest/dividend > 1/2"},
	{"pr/d>3/4", "price*interest/dividend > 3/4"},
	{"pr/d>7/8", "price*interest/dividend > 7/8"},
	{"pr/d>1", "price*interest/dividend > 1"},
	{"pr/d>9/8", "price*interest/dividend > 9/8"},
	{"pr/d>5/4", "price*interest/dividend > 5/4"},
	{"pr/d>3/2", "price*interest/dividend > 3/2"},
	{"pr/d>2", "price*interest/dividend > 2"},
	{"pr/d>4", "price*interest/dividend > 4"},

	{"pup", "price went up this period"},
	{"pup1", "price went up one period ago"},
	{"pup2", "price went up two periods ago"},
	{"pup3", "price went up three periods ago"},
	{"pup4", "price went up four periods ago"},

	{"p5up", "5-period MA of price went up"},
	{"p20up", "20-period MA of price went up"},
	{"p100up", "100-period MA of price went up"},
	{"p500up", "500-period MA of price went up"},

	{"p>p5", "price > 5-period MA"},
	{"p>p20", "price > 20-period MA"},
	{"p>p100", "price > 100-period MA"},
	{"p>p500", "price > 500-period MA"},

	{"p5>p20", "price: 5-period MA > 20-period MA"},
	{"p5>p100", "price: 5-period MA > 100-period MA"},
	{"p5>p500", "price: 5-period MA > 500-period MA"},
	{"p20>p100", "price: 20-period MA > 100-period MA"},
	{"p20>p500", "price: 20-period MA > 500-period MA"},
	{"p100>p500", "price: 100-period MA > 500-period MA"},
}

var bitIndex = func() map[string]int {
	m := make(map[string]int, NumWorldBits)
	for i, b := range bitTable {
		m[b.name] = i
	}
	return m
}()

// BitNames returns the names of all world bits in index order.
func BitNames() []string {
	names := make([]string, NumWorldBits)
	for i, b := range bitTable {
		names[i] = b.name
	}
	return names
}

// BitNumber returns the index of the named bit.
func BitNumber(name string) (int, bool) {
	i, ok := bitIndex[name]
	return i, ok
}

// BitName returns the name of bit i.
func BitName(i int) string {
	if i < 0 || i >= NumWorldBits {
		return fmt.Sprintf("bit%d", i)
	}
	return bitTable[i].name
}

// BitDescription returns the human-readable meaning of bit i.
func BitDescription(i int) string {
	if i < 0 || i >= NumWorldBits {
		return ""
	}
	return bitTable[i].desc
}

// ResolveBits maps bit names to world indices, failing on the first
// unknown name.
func ResolveBits(names []string) ([]int, error) {
	idx := make([]int, len(names))
	for i, n := range names {
		j, ok := BitNumber(n)
		if !ok {
			return nil, fmt.Errorf("world.ResolveBits: unknown bit %q", n)
		}
		idx[i] = j
	}
	return idx, nil
}
