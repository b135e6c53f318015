// Package agegroup maps demographic codes onto the bands the allocation
// workflows group by: five custom age bands and binary sex codes.
package agegroup

import (
	"strconv"
	"strings"
)

// Unknown is returned for ages outside every band
const Unknown = "Unknown"

// Bands lists the custom age bands in ascending order
var Bands = []string{"0-17", "18-44", "45-64", "65-84", "85+"}

// FromYears maps a single year of age to its band
func FromYears(age int) string {
	switch {
	case age < 0:
		return Unknown
	case age <= 17:
		return "0-17"
	case age <= 44:
		return "18-44"
	case age <= 64:
		return "45-64"
	case age <= 84:
		return "65-84"
	default:
		return "85+"
	}
}

// FromLabel maps an age label to its band. Labels that already name a band
// pass through; single-year labels such as "37" or "90+" are banded; anything
// else maps to Unknown.
func FromLabel(label string) string {
	label = strings.TrimSpace(label)
	if IsBand(label) {
		return label
	}
	trimmed := strings.TrimSuffix(label, "+")
	if age, err := strconv.Atoi(trimmed); err == nil && age >= 0 {
		return FromYears(age)
	}
	return Unknown
}

// IsBand reports whether the label names one of the custom bands
func IsBand(label string) bool {
	for _, b := range Bands {
		if label == b {
			return true
		}
	}
	return false
}

// NormalizeSex maps source sex codes onto "M"/"F". Projection sources code
// women as "W"; totals rows ("T" and the like) are dropped, not summed.
func NormalizeSex(code string) (string, bool) {
	switch strings.TrimSpace(code) {
	case "M":
		return "M", true
	case "F", "W":
		return "F", true
	default:
		return "", false
	}
}
