package types

import (
	"fmt"
	"strings"
)

// Suit is the group of balls the player is trying to pot
type Suit string

const (
	SuitOpen    Suit = "OPEN"
	SuitReds    Suit = "REDS"
	SuitYellows Suit = "YELLOWS"
)

// ParseSuit accepts open|reds|yellows in any case
func ParseSuit(s string) (Suit, error) {
	switch Suit(strings.ToUpper(strings.TrimSpace(s))) {
	case SuitOpen:
		return SuitOpen, nil
	case SuitReds:
		return SuitReds, nil
	case SuitYellows:
		return SuitYellows, nil
	}
	return "", fmt.Errorf("unknown suit %q (use open, reds or yellows)", s)
}

// Valid reports whether s is one of the known suits
func (s Suit) Valid() bool {
	return s == SuitOpen || s == SuitReds || s == SuitYellows
}

// Mode selects the coaching persona
type Mode string

const (
	ModeCasual      Mode = "casual"
	ModeCompetition Mode = "competition"
)

// ParseMode accepts casual|competition in any case. "pro" is an alias for competition.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "casual":
		return ModeCasual, nil
	case "competition", "pro":
		return ModeCompetition, nil
	}
	return "", fmt.Errorf("unknown mode %q (use casual or competition)", s)
}

// Valid reports whether m is one of the known modes
func (m Mode) Valid() bool {
	return m == ModeCasual || m == ModeCompetition
}

// AnalysisParameters are the user's choices sent alongside the photo
type AnalysisParameters struct {
	Suit Suit `json:"suit"`
	Foul bool `json:"foul"`
	Mode Mode `json:"mode"`
}

// Validate checks that every field holds an enumerated value
func (p AnalysisParameters) Validate() error {
	if !p.Suit.Valid() {
		return fmt.Errorf("invalid suit %q", p.Suit)
	}
	if !p.Mode.Valid() {
		return fmt.Errorf("invalid mode %q", p.Mode)
	}
	return nil
}

// EncodedImage is a downsampled, re-encoded photo ready for upload
type EncodedImage struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// Difficulty tiers accepted in a recommendation
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
	DifficultyExpert Difficulty = "Expert"
)

// Difficulties lists the tiers in ascending order
func Difficulties() []Difficulty {
	return []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExpert}
}

// ShotTechnique describes how to execute one shot
type ShotTechnique struct {
	Aiming string `json:"aiming"`
	Spin   string `json:"spin"`
	Power  string `json:"power"`
	Bridge string `json:"bridge"`
}

// ShotRecommendation is one ranked shot suggested by the model
type ShotRecommendation struct {
	TargetBallColor    string        `json:"targetBallColor"`
	TargetBallLocation string        `json:"targetBallLocation"`
	Difficulty         Difficulty    `json:"difficulty" validate:"oneof=Easy Medium Hard Expert"`
	Technique          ShotTechnique `json:"technique"`
	Reasoning          string        `json:"reasoning"`
	NextShotPlan       string        `json:"nextShotPlan"`
	ConfidenceScore    float64       `json:"confidenceScore" validate:"gte=0,lte=100"`
}

// AnalysisResult is the complete reply for one photo.
// Recommendations are ranked by position; index 0 is the primary shot.
type AnalysisResult struct {
	Recommendations []ShotRecommendation `json:"recommendations" validate:"dive"`
	GeneralAdvice   string               `json:"generalAdvice"`
}

// Best returns the top recommendation, if any
func (r *AnalysisResult) Best() (ShotRecommendation, bool) {
	if r == nil || len(r.Recommendations) == 0 {
		return ShotRecommendation{}, false
	}
	return r.Recommendations[0], true
}

// Schema is the subset of JSON Schema used to constrain model output.
// It marshals as plain JSON Schema.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// Schema type names
const (
	TypeObject  = "object"
	TypeArray   = "array"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
)
