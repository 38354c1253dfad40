package bicycle

import (
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// LoadParams reads a parameter set from a whitespace-delimited text file.
// The layout is a strict-order sequence of floating point fields: the
// entries of M, C1, K0, K2 (row by row), then wheelbase, trail, steer
// axis tilt, rear wheel radius, front wheel radius. A missing file or a
// field count other than exactly 4*o*o + 5 is an error.
func LoadParams(path string) (Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return Params{}, fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}
	defer f.Close()

	const o = SecondOrderSize
	buffer := make([]float64, 4*o*o+5)
	for i := range buffer {
		if _, err := fmt.Fscan(f, &buffer[i]); err != nil {
			return Params{}, fmt.Errorf("%w: field %d of %d: %v", ErrInvalidParam, i+1, len(buffer), err)
		}
	}
	var extra float64
	if _, err := fmt.Fscan(f, &extra); err != io.EOF {
		return Params{}, fmt.Errorf("%w: trailing fields after %d values", ErrInvalidParam, len(buffer))
	}

	return Params{
		M:                mat.NewSymDense(o, buffer[0:o*o]),
		C1:               mat.NewDense(o, o, buffer[o*o:2*o*o]),
		K0:               mat.NewDense(o, o, buffer[2*o*o:3*o*o]),
		K2:               mat.NewDense(o, o, buffer[3*o*o:4*o*o]),
		Wheelbase:        buffer[4*o*o],
		Trail:            buffer[4*o*o+1],
		SteerAxisTilt:    buffer[4*o*o+2],
		RearWheelRadius:  buffer[4*o*o+3],
		FrontWheelRadius: buffer[4*o*o+4],
	}, nil
}

type paramsYAML struct {
	M                [][]float64 `yaml:"M"`
	C1               [][]float64 `yaml:"C1"`
	K0               [][]float64 `yaml:"K0"`
	K2               [][]float64 `yaml:"K2"`
	Wheelbase        float64     `yaml:"wheelbase"`
	Trail            float64     `yaml:"trail"`
	SteerAxisTilt    float64     `yaml:"steer_axis_tilt"`
	RearWheelRadius  float64     `yaml:"rear_wheel_radius"`
	FrontWheelRadius float64     `yaml:"front_wheel_radius"`
}

// LoadParamsYAML reads a parameter set from a YAML file with 2x2 nested
// sequences for the second order matrices and scalar geometry fields.
func LoadParamsYAML(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}
	var py paramsYAML
	if err := yaml.Unmarshal(data, &py); err != nil {
		return Params{}, fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}

	const o = SecondOrderSize
	dense := func(name string, rows [][]float64) (*mat.Dense, error) {
		if len(rows) != o {
			return nil, fmt.Errorf("%w: %s must have %d rows", ErrInvalidParam, name, o)
		}
		d := mat.NewDense(o, o, nil)
		for i, row := range rows {
			if len(row) != o {
				return nil, fmt.Errorf("%w: %s row %d must have %d columns", ErrInvalidParam, name, i, o)
			}
			for j, v := range row {
				d.Set(i, j, v)
			}
		}
		return d, nil
	}

	m, err := dense("M", py.M)
	if err != nil {
		return Params{}, err
	}
	c1, err := dense("C1", py.C1)
	if err != nil {
		return Params{}, err
	}
	k0, err := dense("K0", py.K0)
	if err != nil {
		return Params{}, err
	}
	k2, err := dense("K2", py.K2)
	if err != nil {
		return Params{}, err
	}

	msym := mat.NewSymDense(o, nil)
	for i := 0; i < o; i++ {
		for j := i; j < o; j++ {
			msym.SetSym(i, j, m.At(i, j))
		}
	}
	return Params{
		M:                msym,
		C1:               c1,
		K0:               k0,
		K2:               k2,
		Wheelbase:        py.Wheelbase,
		Trail:            py.Trail,
		SteerAxisTilt:    py.SteerAxisTilt,
		RearWheelRadius:  py.RearWheelRadius,
		FrontWheelRadius: py.FrontWheelRadius,
	}, nil
}
