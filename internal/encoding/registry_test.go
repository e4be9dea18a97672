package encoding_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbhuvana2005/patient-readmission-prediction/internal/encoding"
)

func diagnosisSpec() encoding.TableSpec {
	return encoding.TableSpec{
		Classes: []string{"A", "B", "I", "J"},
		Aliases: map[string]string{
			"IX - Circulatory system": "I",
			"X - Respiratory system":  "J",
		},
	}
}

func testRegistry(t *testing.T) *encoding.Registry {
	t.Helper()
	r, err := encoding.RegistryFromSpecs(map[string]encoding.TableSpec{
		"PatientGender":    {Classes: []string{"Female", "Male"}},
		"DiagnosisChapter": diagnosisSpec(),
	})
	require.NoError(t, err)
	return r
}

func TestTable_CodesFollowClassOrder(t *testing.T) {
	table, err := encoding.NewTable("DiagnosisChapter", diagnosisSpec())
	require.NoError(t, err)

	for want, label := range []string{"A", "B", "I", "J"} {
		code, ok := table.Lookup(label)
		assert.True(t, ok)
		assert.Equal(t, want, code, label)
	}
}

func TestTable_Aliases(t *testing.T) {
	table, err := encoding.NewTable("DiagnosisChapter", diagnosisSpec())
	require.NoError(t, err)

	code, ok := table.Lookup("ix -  circulatory   SYSTEM")
	assert.True(t, ok)
	assert.Equal(t, 2, code)

	assert.Equal(t, map[string]string{
		"IX - Circulatory system": "I",
		"X - Respiratory system":  "J",
	}, table.Aliases())
}

func TestTable_Fallback(t *testing.T) {
	table, err := encoding.NewTable("PatientGender", encoding.TableSpec{Classes: []string{"Female", "Male"}})
	require.NoError(t, err)
	assert.Equal(t, "Female", table.FallbackLabel())

	code, ok := table.Lookup("Other")
	assert.False(t, ok)
	assert.Equal(t, 0, code)

	custom, err := encoding.NewTable("PatientGender", encoding.TableSpec{Classes: []string{"Female", "Male"}, Fallback: "Male"})
	require.NoError(t, err)
	code, ok = custom.Lookup("Other")
	assert.False(t, ok)
	assert.Equal(t, 1, code)
}

func TestNewTable_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		field string
		spec  encoding.TableSpec
	}{
		{"no field", "", encoding.TableSpec{Classes: []string{"a"}}},
		{"no classes", "f", encoding.TableSpec{}},
		{"duplicate class", "f", encoding.TableSpec{Classes: []string{"a", "a"}}},
		{"unknown fallback", "f", encoding.TableSpec{Classes: []string{"a"}, Fallback: "b"}},
		{"alias to unknown class", "f", encoding.TableSpec{Classes: []string{"a"}, Aliases: map[string]string{"x": "b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := encoding.NewTable(tt.field, tt.spec)
			assert.Error(t, err)
		})
	}
}

func TestRegistry_Encode(t *testing.T) {
	r := testRegistry(t)

	code, err := r.Encode("PatientGender", "Male")
	require.NoError(t, err)
	assert.Equal(t, encoding.Code{Value: 1}, code)

	code, err = r.Encode("DiagnosisChapter", "Z")
	require.NoError(t, err)
	assert.Equal(t, encoding.Code{Value: 0, Fallback: true}, code)
}

func TestRegistry_UnknownField(t *testing.T) {
	r := testRegistry(t)

	_, err := r.Encode("Race", "x")
	var unknown *encoding.UnknownFieldError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "Race", unknown.Field)
}

func TestRegistry_DuplicateTable(t *testing.T) {
	a, err := encoding.NewTable("PatientGender", encoding.TableSpec{Classes: []string{"Female"}})
	require.NoError(t, err)

	_, err = encoding.NewRegistry(a, a)
	assert.Error(t, err)
}

func TestRegistry_Fields(t *testing.T) {
	assert.Equal(t, []string{"DiagnosisChapter", "PatientGender"}, testRegistry(t).Fields())
}

func TestRegistry_ConcurrentEncode(t *testing.T) {
	r := testRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				code, err := r.Encode("DiagnosisChapter", "J")
				assert.NoError(t, err)
				assert.Equal(t, 3, code.Value)
			}
		}()
	}
	wg.Wait()
}
