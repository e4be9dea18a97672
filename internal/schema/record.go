package schema

// PatientRecord is a validated patient. It is built only by Validator and is
// never modified afterwards.
type PatientRecord struct {
	LengthOfStay       int
	PreviousAdmissions int
	PatientAge         int
	PatientGender      string
	DiagnosisChapter   string
	NumLabs            int
	HemoglobinAvg      float64
	GlucoseAvg         float64
	CreatinineAvg      float64
	WBCAvg             float64
}

// Numeric returns a numeric field by its wire name. Integer fields are widened
// to float64.
func (r *PatientRecord) Numeric(name string) (float64, bool) {
	switch name {
	case LengthOfStay:
		return float64(r.LengthOfStay), true
	case PreviousAdmissions:
		return float64(r.PreviousAdmissions), true
	case PatientAge:
		return float64(r.PatientAge), true
	case NumLabs:
		return float64(r.NumLabs), true
	case HemoglobinAvg:
		return r.HemoglobinAvg, true
	case GlucoseAvg:
		return r.GlucoseAvg, true
	case CreatinineAvg:
		return r.CreatinineAvg, true
	case WBCAvg:
		return r.WBCAvg, true
	}
	return 0, false
}

func (r *PatientRecord) Categorical(name string) (string, bool) {
	switch name {
	case PatientGender:
		return r.PatientGender, true
	case DiagnosisChapter:
		return r.DiagnosisChapter, true
	}
	return "", false
}

// Fields returns the record as a flat map keyed by wire name.
func (r *PatientRecord) Fields() map[string]any {
	return map[string]any{
		LengthOfStay:       r.LengthOfStay,
		PreviousAdmissions: r.PreviousAdmissions,
		PatientAge:         r.PatientAge,
		PatientGender:      r.PatientGender,
		DiagnosisChapter:   r.DiagnosisChapter,
		NumLabs:            r.NumLabs,
		HemoglobinAvg:      r.HemoglobinAvg,
		GlucoseAvg:         r.GlucoseAvg,
		CreatinineAvg:      r.CreatinineAvg,
		WBCAvg:             r.WBCAvg,
	}
}

// supports reports whether PatientRecord has a typed slot for the field.
func supports(f FieldSpec) bool {
	switch f.Kind {
	case Integer:
		switch f.Name {
		case LengthOfStay, PreviousAdmissions, PatientAge, NumLabs:
			return true
		}
	case Float:
		switch f.Name {
		case HemoglobinAvg, GlucoseAvg, CreatinineAvg, WBCAvg:
			return true
		}
	case Categorical:
		switch f.Name {
		case PatientGender, DiagnosisChapter:
			return true
		}
	}
	return false
}

func (r *PatientRecord) setInt(name string, v int) {
	switch name {
	case LengthOfStay:
		r.LengthOfStay = v
	case PreviousAdmissions:
		r.PreviousAdmissions = v
	case PatientAge:
		r.PatientAge = v
	case NumLabs:
		r.NumLabs = v
	}
}

func (r *PatientRecord) setFloat(name string, v float64) {
	switch name {
	case HemoglobinAvg:
		r.HemoglobinAvg = v
	case GlucoseAvg:
		r.GlucoseAvg = v
	case CreatinineAvg:
		r.CreatinineAvg = v
	case WBCAvg:
		r.WBCAvg = v
	}
}

func (r *PatientRecord) setString(name string, v string) {
	switch name {
	case PatientGender:
		r.PatientGender = v
	case DiagnosisChapter:
		r.DiagnosisChapter = v
	}
}
