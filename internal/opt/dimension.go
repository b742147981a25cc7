package opt

import "fmt"

// Dimension is one slot of the closed commodity set. A vehicle capacity on a dimension is
// also the skill that lets it serve requests of that service type.
type Dimension uint8

const (
	FryerOil Dimension = iota
	GreaseTrap
	HoodCleaning
	HydroJetting

	NumDimensions
)

var dimensionNames = [NumDimensions]string{
	FryerOil:     "fryerOil",
	GreaseTrap:   "greaseTrap",
	HoodCleaning: "hoodCleaning",
	HydroJetting: "hydroJetting",
}

func (d Dimension) String() string {
	if d.Valid() {
		return dimensionNames[d]
	}
	return fmt.Sprintf("Dimension(%d)", uint8(d))
}

// Valid reports whether d is inside the closed set.
func (d Dimension) Valid() bool { return d < NumDimensions }

// ParseDimension maps a service type name onto its dimension.
func ParseDimension(name string) (Dimension, bool) {
	for d, n := range dimensionNames {
		if n == name {
			return Dimension(d), true
		}
	}
	return 0, false
}

// Dimensions lists the closed set in index order.
func Dimensions() []Dimension {
	out := make([]Dimension, NumDimensions)
	for i := range out {
		out[i] = Dimension(i)
	}
	return out
}

// Capacity holds one integer amount per dimension.
type Capacity [NumDimensions]int

// SkillSet is a bit set over dimensions.
type SkillSet uint32

func (s SkillSet) Has(d Dimension) bool { return d.Valid() && s&(1<<d) != 0 }

func (s SkillSet) With(d Dimension) SkillSet { return s | 1<<d }

// List returns the held skills in dimension order.
func (s SkillSet) List() []Dimension {
	var out []Dimension
	for _, d := range Dimensions() {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}
