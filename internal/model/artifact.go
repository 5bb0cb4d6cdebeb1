package model

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/tigerroll/powercast/internal/dataset"
	"github.com/tigerroll/powercast/internal/support/exception"
)

// ArtifactSchemaVersion identifies the serialized layout. Readers reject
// versions they do not understand.
const ArtifactSchemaVersion = 1

// Artifact is the self-contained serialized model: everything inference
// needs to reproduce the training-time feature and scaling contract.
type Artifact struct {
	SchemaVersion int                    `json:"schema_version"`
	FeatDim       int                    `json:"feat_dim"`
	Horizon       int                    `json:"horizon"`
	HiddenSize    int                    `json:"hidden_size"`
	NumLayers     int                    `json:"num_layers"`
	Dropout       float64                `json:"dropout"`
	InputWindow   int                    `json:"input_window"`
	Scaler        dataset.StandardScaler `json:"scaler"`
	FeatNames     []string               `json:"feat_names"`
	Weights       map[string][]float64   `json:"weights"`
}

// Snapshot deep-copies the current weights, keyed by parameter name.
func (m *Seq2Seq) Snapshot() map[string][]float64 {
	out := make(map[string][]float64)
	for _, p := range m.Params() {
		cp := make([]float64, len(p.Data))
		copy(cp, p.Data)
		out[p.Name] = cp
	}
	return out
}

// Restore overwrites the model weights from a snapshot.
func (m *Seq2Seq) Restore(weights map[string][]float64) error {
	for _, p := range m.Params() {
		src, ok := weights[p.Name]
		if !ok {
			return exception.NewPipelineErrorf("model", "snapshot is missing tensor %s", p.Name)
		}
		if len(src) != len(p.Data) {
			return exception.NewPipelineErrorf("model",
				"tensor %s has %d values, expected %d", p.Name, len(src), len(p.Data))
		}
		copy(p.Data, src)
	}
	return nil
}

// ToArtifact captures the model plus its feature and scaling contract.
func (m *Seq2Seq) ToArtifact(inputWindow int, featNames []string, scaler dataset.StandardScaler) *Artifact {
	return &Artifact{
		SchemaVersion: ArtifactSchemaVersion,
		FeatDim:       m.FeatDim,
		Horizon:       m.Horizon,
		HiddenSize:    m.HiddenSize,
		NumLayers:     m.NumLayers,
		Dropout:       m.Dropout,
		InputWindow:   inputWindow,
		Scaler:        scaler,
		FeatNames:     featNames,
		Weights:       m.Snapshot(),
	}
}

// Marshal serializes the artifact as JSON.
func (a *Artifact) Marshal() ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, exception.NewPipelineError("model", "failed to serialize model artifact", err, false, false)
	}
	return data, nil
}

// LoadArtifact parses and validates a serialized artifact.
func LoadArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, exception.NewPipelineError("model", "failed to parse model artifact", err, false, false)
	}
	if a.SchemaVersion != ArtifactSchemaVersion {
		return nil, exception.NewPipelineErrorf("model",
			"unsupported artifact schema version %d", a.SchemaVersion)
	}
	if a.FeatDim != len(a.FeatNames) {
		return nil, exception.NewPipelineErrorf("model",
			"artifact declares feat_dim %d but lists %d feature names", a.FeatDim, len(a.FeatNames))
	}
	return &a, nil
}

// Instantiate rebuilds a ready-to-run model from the artifact weights.
func (a *Artifact) Instantiate() (*Seq2Seq, error) {
	m := NewSeq2Seq(a.FeatDim, a.HiddenSize, a.NumLayers, a.Horizon, a.Dropout, rand.New(rand.NewSource(0)))
	if err := m.Restore(a.Weights); err != nil {
		return nil, fmt.Errorf("restoring artifact weights: %w", err)
	}
	m.SetTraining(false)
	return m, nil
}
