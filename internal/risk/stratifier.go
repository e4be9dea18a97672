// Package risk turns a readmission probability into a risk tier and the care
// pathway recommended for it.
package risk

import (
	"fmt"
	"strings"
)

// Tier is an ordered risk bucket; higher values mean higher risk.
type Tier int

const (
	Low Tier = iota + 1
	Moderate
	High
)

// Tier thresholds on readmission probability expressed in percent.
const (
	ModerateThreshold = 40.0
	HighThreshold     = 60.0
)

func (t Tier) String() string {
	switch t {
	case Low:
		return "LOW"
	case Moderate:
		return "MODERATE"
	case High:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

func (t Tier) MarshalText() ([]byte, error) {
	if t < Low || t > High {
		return nil, fmt.Errorf("invalid risk tier %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := TierFromString(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func TierFromString(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return Low, nil
	case "MODERATE":
		return Moderate, nil
	case "HIGH":
		return High, nil
	default:
		return 0, fmt.Errorf("invalid risk tier: %q", s)
	}
}

// TierFromPercent applies the fixed threshold policy. Every real input maps to
// exactly one tier.
func TierFromPercent(percent float64) Tier {
	switch {
	case percent >= HighThreshold:
		return High
	case percent >= ModerateThreshold:
		return Moderate
	default:
		return Low
	}
}

type Pathway struct {
	Tag     string   `json:"tag"`
	Title   string   `json:"title"`
	Actions []string `json:"actions"`
}

var pathways = map[Tier]Pathway{
	Low: {
		Tag:   "standard-discharge",
		Title: "Standard Care Protocol",
		Actions: []string{
			"Routine follow-up within 2-4 weeks",
			"Standard discharge instructions provided",
			"Primary care physician notification",
			"Medication list and prescriptions reviewed",
			"Patient education materials provided",
		},
	},
	Moderate: {
		Tag:   "early-follow-up",
		Title: "Standard Care with Early Follow-up",
		Actions: []string{
			"Follow-up within 7-14 days",
			"Medication reconciliation before discharge",
			"Primary care physician notification",
			"Patient education on warning signs",
			"Confirm caregiver understanding of discharge instructions",
		},
	},
	High: {
		Tag:   "enhanced-care",
		Title: "Enhanced Care Pathway",
		Actions: []string{
			"Schedule follow-up within 7 days",
			"Arrange home health services if applicable",
			"Comprehensive medication reconciliation",
			"Social work consultation for support needs",
			"Patient education on warning signs",
			"Consider transitional care program enrollment",
			"Confirm transportation arrangements",
			"Ensure caregiver involvement and education",
		},
	},
}

// PathwayFor returns a copy of the static pathway for t.
func PathwayFor(t Tier) (Pathway, bool) {
	p, ok := pathways[t]
	if !ok {
		return Pathway{}, false
	}
	p.Actions = append([]string(nil), p.Actions...)
	return p, true
}

type Assessment struct {
	Tier                   Tier    `json:"tier"`
	ReadmissionProbability float64 `json:"readmission_probability"`
	Pathway                Pathway `json:"pathway"`
}

// Stratify maps a readmission probability in percent to its assessment.
func Stratify(percent float64) Assessment {
	tier := TierFromPercent(percent)
	pathway, _ := PathwayFor(tier)
	return Assessment{
		Tier:                   tier,
		ReadmissionProbability: percent,
		Pathway:                pathway,
	}
}
