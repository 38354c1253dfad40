package bicycle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func writeBenchmarkFile(t *testing.T, trailing string) string {
	t.Helper()
	p := Benchmark()

	var sb strings.Builder
	for _, m := range []mat.Matrix{p.M, p.C1, p.K0, p.K2} {
		for i := 0; i < SecondOrderSize; i++ {
			for j := 0; j < SecondOrderSize; j++ {
				fmt.Fprintf(&sb, "%.17g\n", m.At(i, j))
			}
		}
	}
	fmt.Fprintf(&sb, "%.17g %.17g %.17g %.17g %.17g\n",
		p.Wheelbase, p.Trail, p.SteerAxisTilt, p.RearWheelRadius, p.FrontWheelRadius)
	sb.WriteString(trailing)

	path := filepath.Join(t.TempDir(), "benchmark.txt")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func assertBenchmarkParams(t *testing.T, p Params) {
	t.Helper()
	want := Benchmark()
	assert.True(t, mat.EqualApprox(want.M, p.M, 1e-15))
	assert.True(t, mat.EqualApprox(want.C1, p.C1, 1e-15))
	assert.True(t, mat.EqualApprox(want.K0, p.K0, 1e-15))
	assert.True(t, mat.EqualApprox(want.K2, p.K2, 1e-15))
	assert.Equal(t, want.Wheelbase, p.Wheelbase)
	assert.Equal(t, want.Trail, p.Trail)
	assert.Equal(t, want.SteerAxisTilt, p.SteerAxisTilt)
	assert.Equal(t, want.RearWheelRadius, p.RearWheelRadius)
	assert.Equal(t, want.FrontWheelRadius, p.FrontWheelRadius)
}

func TestLoadParams(t *testing.T) {
	p, err := LoadParams(writeBenchmarkFile(t, ""))
	require.NoError(t, err)
	assertBenchmarkParams(t, p)

	// The loaded set builds the same model as the in-memory benchmark.
	loaded, err := New(p, 5.0, testDT)
	require.NoError(t, err)
	bench := newBenchmarkBicycle(t, 5.0, testDT)
	assert.True(t, mat.EqualApprox(bench.A(), loaded.A(), 1e-12))
	assert.True(t, mat.EqualApprox(bench.Ad(), loaded.Ad(), 1e-12))
}

func TestLoadParamsMissingFile(t *testing.T) {
	_, err := LoadParams(filepath.Join(t.TempDir(), "does-not-exist.txt"))
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestLoadParamsTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.txt")
	require.NoError(t, os.WriteFile(path, []byte("1.0 2.0 3.0\n"), 0o644))
	_, err := LoadParams(path)
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestLoadParamsTrailingField(t *testing.T) {
	_, err := LoadParams(writeBenchmarkFile(t, "99.0\n"))
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestLoadParamsMalformedField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.txt")
	require.NoError(t, os.WriteFile(path, []byte("1.0 oops 3.0\n"), 0o644))
	_, err := LoadParams(path)
	assert.ErrorIs(t, err, ErrInvalidParam)
}

const benchmarkYAML = `
M:
  - [80.81722, 2.31941332208709]
  - [2.31941332208709, 0.29784188199686]
C1:
  - [0.0, 33.86641391492494]
  - [-0.85035641456978, 1.68540397397560]
K0:
  - [-80.95, -2.59951685249872]
  - [-2.59951685249872, -0.80329488458618]
K2:
  - [0.0, 76.59734589573222]
  - [0.0, 2.65431523794604]
wheelbase: 1.02
trail: 0.08
steer_axis_tilt: 0.3141592653589793
rear_wheel_radius: 0.3
front_wheel_radius: 0.35
`

func TestLoadParamsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "benchmark.yaml")
	require.NoError(t, os.WriteFile(path, []byte(benchmarkYAML), 0o644))

	p, err := LoadParamsYAML(path)
	require.NoError(t, err)
	want := Benchmark()
	assert.True(t, mat.EqualApprox(want.M, p.M, 1e-15))
	assert.True(t, mat.EqualApprox(want.C1, p.C1, 1e-15))
	assert.True(t, mat.EqualApprox(want.K0, p.K0, 1e-15))
	assert.True(t, mat.EqualApprox(want.K2, p.K2, 1e-15))
	assert.Equal(t, want.Wheelbase, p.Wheelbase)
	assert.InDelta(t, want.SteerAxisTilt, p.SteerAxisTilt, 1e-15)
}

func TestLoadParamsYAMLBadShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	content := strings.Replace(benchmarkYAML,
		"  - [80.81722, 2.31941332208709]\n", "  - [80.81722]\n", 1)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadParamsYAML(path)
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestLoadParamsYAMLNotYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{: not yaml ["), 0o644))

	_, err := LoadParamsYAML(path)
	assert.ErrorIs(t, err, ErrInvalidParam)
}
