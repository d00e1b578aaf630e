// Package simulation ties the compiler and engine together into runnable
// simulations and transport-neutral results.
package simulation

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Precision selects the amplitude storage width reported to callers.
// The engine always evolves the state in double precision; single precision
// only narrows the amplitudes written into the result, so both precisions
// produce identical probability vectors.
type Precision string

const (
	PrecisionSingle Precision = "single"
	PrecisionDouble Precision = "double"
)

// BytesPerAmplitude returns the storage cost of one complex amplitude.
func (p Precision) BytesPerAmplitude() int64 {
	if p == PrecisionSingle {
		return 8
	}
	return 16
}

// Config parameterizes a single run. A run is a pure function of
// (program, config): same inputs and seed, same results, regardless of lane.
type Config struct {
	Shots      int                `json:"shots,omitempty"`
	Seed       *int64             `json:"seed,omitempty"`
	Precision  Precision          `json:"precision,omitempty"`
	Parameters map[string]float64 `json:"parameters,omitempty"`

	// Workers is the goroutine count for the gate kernel. Zero means
	// serial. Never serialized with the request; each lane sets its own.
	Workers int `json:"-"`

	// AmplitudeLimitQubits omits amplitudes from the result for states
	// larger than 2^limit, bounding transport size. Zero means no limit.
	AmplitudeLimitQubits int `json:"-"`
}

// Amplitude is one complex amplitude in wire form.
type Amplitude struct {
	Re float64 `json:"re" msgpack:"re"`
	Im float64 `json:"im" msgpack:"im"`
}

// Result is the transport-neutral outcome of a completed run.
// Amplitudes may be omitted by policy for very large states; probabilities,
// counts, and classical bits are always present.
type Result struct {
	QubitCount    int               `json:"qubit_count" msgpack:"qubit_count"`
	Amplitudes    []Amplitude       `json:"amplitudes,omitempty" msgpack:"amplitudes,omitempty"`
	Probabilities []float64         `json:"probabilities" msgpack:"probabilities"`
	Counts        map[string]uint64 `json:"counts,omitempty" msgpack:"counts,omitempty"`
	ClassicalBits []int             `json:"classical_bits" msgpack:"classical_bits"`
}

// Encode serializes the result for storage or transport.
func (r *Result) Encode() ([]byte, error) {
	data, err := msgpack.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return data, nil
}

// DecodeResult is the inverse of Encode.
func DecodeResult(data []byte) (*Result, error) {
	var r Result
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &r, nil
}
