// Package viseme turns server-pushed viseme timing batches into a live
// "current viseme" signal for the avatar's mouth.
package viseme

import "fmt"

// ID is a numeric viseme identifier in [0, Count).
type ID int

// Silence is the neutral, closed-mouth viseme.
const Silence ID = 0

// Count is the number of known viseme ids.
const Count = 22

// shapeNames maps each viseme id to the blend shape that renders it.
var shapeNames = [Count]string{
	"viseme_sil", // 0  silence
	"viseme_aa",  // 1  æ ə ʌ
	"viseme_aa",  // 2  ɑ
	"viseme_O",   // 3  ɔ
	"viseme_E",   // 4  ɛ ʊ
	"viseme_RR",  // 5  ɝ
	"viseme_I",   // 6  j i ɪ
	"viseme_U",   // 7  w u
	"viseme_O",   // 8  o
	"viseme_aa",  // 9  aʊ
	"viseme_O",   // 10 ɔɪ
	"viseme_I",   // 11 aɪ
	"viseme_kk",  // 12 h
	"viseme_RR",  // 13 ɹ
	"viseme_nn",  // 14 l
	"viseme_SS",  // 15 s z
	"viseme_CH",  // 16 ʃ tʃ dʒ ʒ
	"viseme_TH",  // 17 ð
	"viseme_FF",  // 18 f v
	"viseme_DD",  // 19 d t n θ
	"viseme_kk",  // 20 k g ŋ
	"viseme_PP",  // 21 p b m
}

// teethMoving are visemes that open the jaw far enough to show the teeth.
var teethMoving = map[ID]bool{
	1: true, 2: true, 3: true, 4: true, 8: true, 9: true, 10: true, 11: true,
}

// Valid reports whether id is in the lookup table.
func (id ID) Valid() bool {
	return id >= 0 && id < Count
}

// ShapeName returns the blend shape for id, or the silence shape for unknown ids.
func (id ID) ShapeName() string {
	if !id.Valid() {
		return shapeNames[Silence]
	}
	return shapeNames[id]
}

// TeethMoving reports whether id belongs to the jaw-opening subset.
func (id ID) TeethMoving() bool {
	return teethMoving[id]
}

func (id ID) String() string {
	return fmt.Sprintf("%d(%s)", int(id), id.ShapeName())
}

// ShapeNames returns every distinct viseme blend shape name, in table order.
func ShapeNames() []string {
	seen := make(map[string]bool, Count)
	names := make([]string, 0, Count)
	for _, n := range shapeNames {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return names
}
