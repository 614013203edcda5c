package bitvec

// bitvec.go — packed ternary storage for condition bits.
//
// Each position holds a Trit in 2 bits, 16 positions per uint32 word.
// Filler positions in the last word stay at 0 so whole-word operations
// never see garbage.

import (
	"fmt"
	"math/bits"
)

// Trit is the value of one condition position.
type Trit uint8

const (
	DontCare Trit = 0
	No       Trit = 1
	Yes      Trit = 2
	Unused   Trit = 3
)

const (
	bitsPerTrit  = 2
	tritsPerWord = 16
	tritMask     = 3
)

// String returns the symbol used in rule dumps: '#', '0', '1' or '-'.
func (t Trit) String() string {
	switch t {
	case DontCare:
		return "#"
	case No:
		return "0"
	case Yes:
		return "1"
	default:
		return "-"
	}
}

// FromBool maps a predicate outcome to Yes/No.
func FromBool(b bool) Trit {
	if b {
		return Yes
	}
	return No
}

// WordsFor returns the number of words needed to hold n trits.
func WordsFor(n int) int {
	return (n + tritsPerWord - 1) / tritsPerWord
}

// Vector is a fixed-length sequence of trits.
type Vector struct {
	n     int
	words []uint32
}

// New returns a vector of n DontCare positions.
func New(n int) *Vector {
	if n < 0 {
		panic(fmt.Sprintf("bitvec.New: negative length %d", n))
	}
	return &Vector{n: n, words: make([]uint32, WordsFor(n))}
}

// Len returns the number of trits.
func (v *Vector) Len() int { return v.n }

// Words returns the number of packed words.
func (v *Vector) Words() int { return len(v.words) }

func (v *Vector) locate(i int) (word int, shift uint) {
	if i < 0 || i >= v.n {
		panic(fmt.Sprintf("bitvec: index %d out of range [0,%d)", i, v.n))
	}
	return i / tritsPerWord, uint(i%tritsPerWord) * bitsPerTrit
}

// Get returns the trit at i.
func (v *Vector) Get(i int) Trit {
	w, s := v.locate(i)
	return Trit((v.words[w] >> s) & tritMask)
}

// Set stores t at i, overwriting whatever was there.
func (v *Vector) Set(i int, t Trit) {
	w, s := v.locate(i)
	v.words[w] = (v.words[w] &^ (tritMask << s)) | (uint32(t&tritMask) << s)
}

// SetFromZero stores t at i only if position i is DontCare.
// It reports whether the store happened.
func (v *Vector) SetFromZero(i int, t Trit) bool {
	w, s := v.locate(i)
	if (v.words[w]>>s)&tritMask != 0 {
		return false
	}
	v.words[w] |= uint32(t&tritMask) << s
	return true
}

// Mask forces position i to DontCare.
func (v *Vector) Mask(i int) {
	w, s := v.locate(i)
	v.words[w] &^= tritMask << s
}

// Toggle flips No<->Yes at i. DontCare and Unused are left alone.
func (v *Vector) Toggle(i int) {
	switch v.Get(i) {
	case No:
		v.Set(i, Yes)
	case Yes:
		v.Set(i, No)
	}
}

// Word returns packed word w.
func (v *Vector) Word(w int) uint32 { return v.words[w] }

// SetWord replaces packed word w. Filler positions past Len are cleared.
func (v *Vector) SetWord(w int, value uint32) {
	v.words[w] = value & v.validMask(w)
}

// validMask covers the positions of word w that belong to the vector.
func (v *Vector) validMask(w int) uint32 {
	used := v.n - w*tritsPerWord
	if used >= tritsPerWord {
		return ^uint32(0)
	}
	return uint32(1)<<(uint(used)*bitsPerTrit) - 1
}

// Reset sets every position to DontCare.
func (v *Vector) Reset() {
	clear(v.words)
}

// Clone returns an independent copy.
func (v *Vector) Clone() *Vector {
	c := &Vector{n: v.n, words: make([]uint32, len(v.words))}
	copy(c.words, v.words)
	return c
}

// CopyFrom overwrites v with the contents of o. Lengths must match.
func (v *Vector) CopyFrom(o *Vector) {
	v.mustMatch(o)
	copy(v.words, o.words)
}

// Equal reports whether both vectors hold the same trits.
func (v *Vector) Equal(o *Vector) bool {
	if v.n != o.n {
		return false
	}
	for i := range v.words {
		if v.words[i] != o.words[i] {
			return false
		}
	}
	return true
}

// Specificity counts positions that are not DontCare.
func (v *Vector) Specificity() int {
	count := 0
	for _, w := range v.words {
		count += bits.OnesCount32(collapse(w))
	}
	return count
}

// Distance counts positions whose trits differ between v and o.
func (v *Vector) Distance(o *Vector) int {
	v.mustMatch(o)
	count := 0
	for i := range v.words {
		count += bits.OnesCount32(collapse(v.words[i] ^ o.words[i]))
	}
	return count
}

// String renders the vector with one symbol per position.
func (v *Vector) String() string {
	buf := make([]byte, v.n)
	for i := 0; i < v.n; i++ {
		buf[i] = v.Get(i).String()[0]
	}
	return string(buf)
}

func (v *Vector) mustMatch(o *Vector) {
	if v.n != o.n {
		panic(fmt.Sprintf("bitvec: length mismatch %d vs %d", v.n, o.n))
	}
}

// collapse leaves one bit set per non-zero 2-bit group.
func collapse(w uint32) uint32 {
	return (w | (w >> 1)) & 0x55555555
}
