package models

import "fmt"

// AgeGroup is an inclusive [MinAge, MaxAge] eligibility bucket fetched from
// the age-range service.
type AgeGroup struct {
	MinAge int `json:"min_age"`
	MaxAge int `json:"max_age"`
}

// Contains reports whether age falls inside the bucket, both ends inclusive.
func (g AgeGroup) Contains(age int) bool {
	return g.MinAge <= age && age <= g.MaxAge
}

func (g AgeGroup) String() string {
	return fmt.Sprintf("%d-%d", g.MinAge, g.MaxAge)
}
