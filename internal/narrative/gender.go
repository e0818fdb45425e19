// Package narrative splits narrative prose into narration and dialogue
// segments and attributes each quote to a speaker.
package narrative

import "regexp"

// Gender is the grammatical gender inferred from pronoun usage.
type Gender string

const (
	// GenderNone means no gender could be inferred (including ties).
	GenderNone Gender = ""
	// GenderFemale is inferred from she/her/herself/hers.
	GenderFemale Gender = "female"
	// GenderMale is inferred from he/him/himself/his.
	GenderMale Gender = "male"
)

var (
	femininePronouns  = regexp.MustCompile(`(?i)\b(?:she|her|herself|hers)\b`)
	masculinePronouns = regexp.MustCompile(`(?i)\b(?:he|him|himself|his)\b`)
)

// InferGender counts whole-word feminine and masculine pronouns in text and
// returns whichever set strictly outnumbers the other.
func InferGender(text string) Gender {
	if text == "" {
		return GenderNone
	}
	female := len(femininePronouns.FindAllStringIndex(text, -1))
	male := len(masculinePronouns.FindAllStringIndex(text, -1))
	switch {
	case female > male:
		return GenderFemale
	case male > female:
		return GenderMale
	default:
		return GenderNone
	}
}
