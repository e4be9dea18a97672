package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kbhuvana2005/patient-readmission-prediction/internal/artifacts"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/risk"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/schema"
)

type FieldDescription struct {
	Name     string            `json:"name"`
	Kind     string            `json:"kind"`
	Label    string            `json:"label,omitempty"`
	Unit     string            `json:"unit,omitempty"`
	Min      *float64          `json:"min,omitempty"`
	Max      *float64          `json:"max,omitempty"`
	Values   []string          `json:"values,omitempty"`
	Aliases  map[string]string `json:"aliases,omitempty"`
	Fallback string            `json:"fallback,omitempty"`
}

type TierDescription struct {
	Tier    risk.Tier    `json:"tier"`
	From    float64      `json:"from_percent"`
	Pathway risk.Pathway `json:"pathway"`
}

// SchemaHandler describes the input form a dashboard has to render. The
// response is computed once since the runtime never changes.
type SchemaHandler struct {
	body fiber.Map
}

func NewSchemaHandler(rt *artifacts.Runtime) *SchemaHandler {
	fields := make([]FieldDescription, 0, rt.Schema.Len())
	for _, f := range rt.Schema.Fields() {
		d := FieldDescription{
			Name:  f.Name,
			Kind:  f.Kind.String(),
			Label: f.Label,
			Unit:  f.Unit,
		}
		if f.Kind.Numeric() {
			lo, hi := f.Min, f.Max
			d.Min, d.Max = &lo, &hi
		} else if t, ok := rt.Registry.Table(f.Name); ok {
			d.Values = t.Classes()
			d.Aliases = t.Aliases()
			d.Fallback = t.FallbackLabel()
		}
		fields = append(fields, d)
	}

	var tiers []TierDescription
	for _, t := range []risk.Tier{risk.Low, risk.Moderate, risk.High} {
		p, _ := risk.PathwayFor(t)
		tiers = append(tiers, TierDescription{Tier: t, From: tierFloor(t), Pathway: p})
	}

	return &SchemaHandler{body: fiber.Map{
		"fields": fields,
		"derived": fiber.Map{
			schema.LengthOfStay: []string{schema.AdmissionDate, schema.DischargeDate},
			schema.PatientAge:   []string{schema.DateOfBirth, schema.DischargeDate},
		},
		"risk_tiers": tiers,
	}}
}

func tierFloor(t risk.Tier) float64 {
	switch t {
	case risk.High:
		return risk.HighThreshold
	case risk.Moderate:
		return risk.ModerateThreshold
	default:
		return 0
	}
}

func (h *SchemaHandler) GetSchema(c *fiber.Ctx) error {
	return c.JSON(h.body)
}
