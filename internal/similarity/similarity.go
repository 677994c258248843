package similarity

import (
	"strings"

	"github.com/agext/levenshtein"
)

// Weights for the composite record match score.
const (
	NameWeight    = 0.4
	AddressWeight = 0.3
	PhoneWeight   = 0.3
)

// String scores two strings in [0,1]: 1.0 for equality after normalization,
// 0.8 for substring containment, otherwise 1 - editDistance/maxLen.
func String(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.8
	}

	dist := levenshtein.Distance(na, nb, nil)
	maxLen := len([]rune(na))
	if l := len([]rune(nb)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 0
	}
	sim := 1.0 - float64(dist)/float64(maxLen)
	if sim < 0 {
		return 0
	}
	return sim
}

// Phone scores two phone numbers on their digits: 1.0 for an exact digit
// match, 0.9 when one contains the other, 0 otherwise.
func Phone(a, b string) float64 {
	da, db := DigitsOnly(a), DigitsOnly(b)
	if da == "" || db == "" {
		return 0
	}
	if da == db {
		return 1.0
	}
	if strings.Contains(da, db) || strings.Contains(db, da) {
		return 0.9
	}
	return 0
}

// Record computes the weighted match score between a baseline identity and a
// crawled identity: name 40%, address 30%, phone 30%. A component is included
// only when both sides carry it, and the score is normalized by the included
// weights, so a pair without phones can still reach 1.0 on name and address.
func Record(name1, addr1, phone1, name2, addr2, phone2 string) float64 {
	total := String(name1, name2) * NameWeight
	weight := NameWeight

	if Normalize(addr1) != "" && Normalize(addr2) != "" {
		total += String(addr1, addr2) * AddressWeight
		weight += AddressWeight
	}
	if DigitsOnly(phone1) != "" && DigitsOnly(phone2) != "" {
		total += Phone(phone1, phone2) * PhoneWeight
		weight += PhoneWeight
	}

	score := total / weight
	if score > 1.0 {
		score = 1.0
	}
	return score
}
