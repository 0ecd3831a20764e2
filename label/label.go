// Package label encodes the mask, gender and age attributes into the compound
// class submitted for each image.
package label

import (
	"errors"
	"fmt"
)

const (
	Mask   = "mask"
	Gender = "gender"
	Age    = "age"
	// Merged is the default name of a single model predicting the compound class.
	Merged = "merged"
)

var (
	MaskValues   = []int{0, 1, 2}
	GenderValues = []int{0, 1}
	AgeValues    = []int{0, 1, 2}

	MaskNames   = []string{"wear", "incorrect", "not wear"}
	GenderNames = []string{"male", "female"}
	AgeNames    = []string{"<30", ">=30 and <60", ">=60"}
)

var ErrUnknownFeature = errors.New("unknown feature")

type Triple struct {
	Mask   int
	Gender int
	Age    int
}

func (t Triple) String() string {
	return fmt.Sprintf("(%d, %d, %d)", t.Mask, t.Gender, t.Age)
}

var triples = product(MaskValues, GenderValues, AgeValues)

// product enumerates mask outer, gender middle, age inner.
func product(mask, gender, age []int) []Triple {
	out := make([]Triple, 0, len(mask)*len(gender)*len(age))
	for _, m := range mask {
		for _, g := range gender {
			for _, a := range age {
				out = append(out, Triple{Mask: m, Gender: g, Age: a})
			}
		}
	}
	return out
}

// Triples returns a copy of the ordered compound class table.
func Triples() []Triple {
	out := make([]Triple, len(triples))
	copy(out, triples)
	return out
}

// NumClasses is the number of compound classes.
func NumClasses() int {
	return len(triples)
}

// Encode returns the compound class of t.
func Encode(t Triple) (int, error) {
	for i, c := range triples {
		if c == t {
			return i, nil
		}
	}
	return -1, fmt.Errorf("triple %s is outside the label domain", t)
}

// Decode returns the triple of compound class i.
func Decode(i int) (Triple, error) {
	if i < 0 || i >= len(triples) {
		return Triple{}, fmt.Errorf("compound class %d out of range [0, %d)", i, len(triples))
	}
	return triples[i], nil
}

// ClassNum returns how many classes the model for feature predicts.
func ClassNum(feature, mergeName string) (int, error) {
	switch feature {
	case Mask:
		return len(MaskValues), nil
	case Gender:
		return len(GenderValues), nil
	case Age:
		return len(AgeValues), nil
	}
	if feature != "" && feature == mergeName {
		return len(triples), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFeature, feature)
}

// Describe renders t with the human readable attribute names.
func Describe(t Triple) string {
	return fmt.Sprintf("mask=%s gender=%s age=%s", MaskNames[t.Mask], GenderNames[t.Gender], AgeNames[t.Age])
}
