package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kbhuvana2005/patient-readmission-prediction/internal/encoding"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/explain"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/model"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/schema"
	"github.com/kbhuvana2005/patient-readmission-prediction/pkg/logger"
	"github.com/kbhuvana2005/patient-readmission-prediction/pkg/utils"
)

// ConfigurationError is fatal: the artifacts do not fit together and the
// process must not serve predictions.
type ConfigurationError struct {
	Artifact string
	Err      error
}

func (e *ConfigurationError) Error() string {
	if e.Artifact == "" {
		return fmt.Sprintf("artifact configuration error: %v", e.Err)
	}
	return fmt.Sprintf("artifact configuration error in %s: %v", e.Artifact, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configErr(artifact string, err error) error {
	return &ConfigurationError{Artifact: artifact, Err: err}
}

// Runtime is the immutable, process-wide inference state built from one
// bundle. It is shared read-only by all requests.
type Runtime struct {
	Origin     string
	Manifest   Manifest
	Columns    []string
	Schema     *schema.Schema
	Validator  *schema.Validator
	Registry   *encoding.Registry
	Encoder    *encoding.FeatureEncoder
	Classifier model.Classifier
	Adapter    *model.Adapter
	Reporter   *explain.Reporter
}

// Open loads a bundle from src and cross-checks every artifact. Any error it
// returns is a *ConfigurationError unless loading itself failed.
func Open(ctx context.Context, src Source, s *schema.Schema, opts ...schema.ValidatorOption) (*Runtime, error) {
	bundle, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifacts: %w", err)
	}
	return Build(bundle, s, opts...)
}

func Build(bundle *Bundle, s *schema.Schema, opts ...schema.ValidatorOption) (*Runtime, error) {
	for _, name := range RequiredFiles {
		if _, ok := bundle.file(name); !ok {
			return nil, configErr(name, fmt.Errorf("artifact is missing or empty"))
		}
	}

	rt := &Runtime{Origin: bundle.Origin, Schema: s}

	if data, ok := bundle.file(ManifestFile); ok {
		if err := json.Unmarshal(data, &rt.Manifest); err != nil {
			return nil, configErr(ManifestFile, err)
		}
		if err := verifyChecksums(bundle, rt.Manifest.Checksums); err != nil {
			return nil, err
		}
	}

	if err := json.Unmarshal(bundle.Files[ColumnsFile], &rt.Columns); err != nil {
		return nil, configErr(ColumnsFile, err)
	}
	if len(rt.Columns) == 0 {
		return nil, configErr(ColumnsFile, fmt.Errorf("column list is empty"))
	}

	forest, err := model.DecodeForest(bundle.Files[ModelFile])
	if err != nil {
		return nil, configErr(ModelFile, err)
	}
	rt.Classifier = forest

	var specs map[string]encoding.TableSpec
	if err := json.Unmarshal(bundle.Files[EncodersFile], &specs); err != nil {
		return nil, configErr(EncodersFile, err)
	}
	rt.Registry, err = encoding.RegistryFromSpecs(specs)
	if err != nil {
		return nil, configErr(EncodersFile, err)
	}
	if err := matchEncoderKeys(rt.Registry.Fields(), s.CategoricalNames()); err != nil {
		return nil, configErr(EncodersFile, err)
	}

	rt.Validator, err = schema.NewValidator(s, opts...)
	if err != nil {
		return nil, configErr("", err)
	}

	rt.Encoder, err = encoding.NewFeatureEncoder(rt.Columns, s, rt.Registry)
	if err != nil {
		return nil, configErr(ColumnsFile, err)
	}

	rt.Adapter, err = model.NewAdapter(forest, rt.Columns)
	if err != nil {
		return nil, configErr(ModelFile, err)
	}

	importances := forest.FeatureImportances()
	if len(importances) == 0 {
		return nil, configErr(ModelFile, fmt.Errorf("model carries no feature importances"))
	}
	rt.Reporter, err = explain.NewReporter(rt.Columns, importances)
	if err != nil {
		return nil, configErr(ModelFile, err)
	}

	if err := rt.probe(); err != nil {
		return nil, configErr(ModelFile, err)
	}

	logger.Info("Model artifacts loaded",
		zap.String("origin", rt.Origin),
		zap.String("model_version", rt.Manifest.Version),
		zap.Int("columns", len(rt.Columns)),
		zap.Int("trees", forest.NumTrees()),
		zap.Strings("encoded_fields", rt.Registry.Fields()),
	)

	return rt, nil
}

// probe scores one synthetic record so that shape problems surface at
// startup rather than on the first request.
func (rt *Runtime) probe() error {
	raw := map[string]any{}
	for _, f := range rt.Schema.Fields() {
		if f.Kind == schema.Categorical {
			t, _ := rt.Registry.Table(f.Name)
			raw[f.Name] = t.FallbackLabel()
			continue
		}
		raw[f.Name] = f.Min
	}

	record, err := rt.Validator.Validate(raw)
	if err != nil {
		return fmt.Errorf("probe record rejected: %w", err)
	}
	enc, err := rt.Encoder.Encode(record)
	if err != nil {
		return fmt.Errorf("probe encoding failed: %w", err)
	}
	if _, err := rt.Adapter.Score(enc.Vector); err != nil {
		return fmt.Errorf("probe scoring failed: %w", err)
	}
	return nil
}

func verifyChecksums(bundle *Bundle, checksums map[string]string) error {
	names := make([]string, 0, len(checksums))
	for name := range checksums {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		data, ok := bundle.file(name)
		if !ok {
			return configErr(name, fmt.Errorf("manifest lists a checksum for a missing artifact"))
		}
		want := strings.ToLower(checksums[name])
		if got := utils.HashBytes(data); got != want {
			return configErr(name, fmt.Errorf("checksum mismatch: manifest %s, content %s", want, got))
		}
	}
	return nil
}

func matchEncoderKeys(encoded, categorical []string) error {
	want := make(map[string]bool, len(categorical))
	for _, f := range categorical {
		want[f] = true
	}

	var extra, missing []string
	for _, f := range encoded {
		if !want[f] {
			extra = append(extra, f)
		}
		delete(want, f)
	}
	for f := range want {
		missing = append(missing, f)
	}
	sort.Strings(missing)

	if len(extra) == 0 && len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("encoder keys do not match categorical fields (unexpected: [%s], missing: [%s])",
		strings.Join(extra, ", "), strings.Join(missing, ", "))
}
