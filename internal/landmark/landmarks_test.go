package landmark

import (
	"errors"
	"math"
	"testing"

	"github.com/goccy/go-json"
)

const tolerance = 1e-6

func pointAt(f *FeatureVector, i int) Point3D {
	return Point3D{X: f[i*3], Y: f[i*3+1], Z: f[i*3+2]}
}

func assertVectorsClose(t *testing.T, got, want FeatureVector) {
	t.Helper()
	for i := range got {
		if math.Abs(got[i]-want[i]) > tolerance {
			t.Fatalf("feature %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func translate(points []Point3D, d Point3D) []Point3D {
	out := make([]Point3D, len(points))
	for i, p := range points {
		out[i] = Point3D{X: p.X + d.X, Y: p.Y + d.Y, Z: p.Z + d.Z}
	}
	return out
}

func scaleAboutWrist(points []Point3D, c float64) []Point3D {
	w := points[Wrist]
	out := make([]Point3D, len(points))
	for i, p := range points {
		out[i] = Point3D{X: w.X + c*(p.X-w.X), Y: w.Y + c*(p.Y-w.Y), Z: w.Z + c*(p.Z-w.Z)}
	}
	return out
}

func TestNormalize(t *testing.T) {
	t.Run("wrist at origin and max norm is 1", func(t *testing.T) {
		hand := OpenPalmLandmarks()

		f, err := Normalize(hand.Points)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		wrist := pointAt(&f, Wrist)
		if wrist != (Point3D{}) {
			t.Errorf("expected wrist at origin, got %+v", wrist)
		}

		var maxNorm float64
		for i := 0; i < NumLandmarks; i++ {
			if n := pointAt(&f, i).norm(); n > maxNorm {
				maxNorm = n
			}
		}
		if math.Abs(maxNorm-1.0) > tolerance {
			t.Errorf("expected largest keypoint distance 1.0, got %f", maxNorm)
		}
	})

	t.Run("flattens in keypoint then axis order", func(t *testing.T) {
		points := make([]Point3D, NumLandmarks)
		points[IndexTip] = Point3D{X: 1, Y: 2, Z: 2} // norm 3, the largest

		f, err := Normalize(points)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		base := IndexTip * 3
		want := []float64{1.0 / 3, 2.0 / 3, 2.0 / 3}
		for axis, w := range want {
			if math.Abs(f[base+axis]-w) > tolerance {
				t.Errorf("f[%d] = %f, want %f", base+axis, f[base+axis], w)
			}
		}
	})

	t.Run("translation invariance", func(t *testing.T) {
		hand := ThumbsUpLandmarks()
		want, err := Normalize(hand.Points)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		offsets := []Point3D{{X: 10, Y: -4, Z: 2}, {X: -0.3, Y: 0.7, Z: 0}, {X: 1e3, Y: 1e3, Z: -1e3}}
		for _, d := range offsets {
			got, err := Normalize(translate(hand.Points, d))
			if err != nil {
				t.Fatalf("offset %+v: unexpected error: %v", d, err)
			}
			assertVectorsClose(t, got, want)
		}
	})

	t.Run("scale invariance", func(t *testing.T) {
		hand := OpenPalmLandmarks()
		want, err := Normalize(hand.Points)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, c := range []float64{0.01, 0.5, 2, 37.5} {
			got, err := Normalize(scaleAboutWrist(hand.Points, c))
			if err != nil {
				t.Fatalf("scale %f: unexpected error: %v", c, err)
			}
			assertVectorsClose(t, got, want)
		}
	})

	t.Run("not rotation invariant", func(t *testing.T) {
		hand := OpenPalmLandmarks()
		a, _ := Normalize(hand.Points)

		// Rotate 90 degrees about the wrist in the image plane.
		w := hand.Points[Wrist]
		rotated := make([]Point3D, NumLandmarks)
		for i, p := range hand.Points {
			rotated[i] = Point3D{X: w.X - (p.Y - w.Y), Y: w.Y + (p.X - w.X), Z: p.Z}
		}
		b, _ := Normalize(rotated)

		if a == b {
			t.Error("rotated hand should produce a different feature vector")
		}
	})

	t.Run("degenerate input", func(t *testing.T) {
		points := make([]Point3D, NumLandmarks)
		for i := range points {
			points[i] = Point3D{X: 0.4, Y: 0.4, Z: 0.1}
		}

		_, err := Normalize(points)
		if !errors.Is(err, ErrDegenerateInput) {
			t.Errorf("expected ErrDegenerateInput, got %v", err)
		}
	})

	t.Run("wrong cardinality", func(t *testing.T) {
		for _, n := range []int{0, 1, 20, 22, 42} {
			_, err := Normalize(make([]Point3D, n))
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("len %d: expected ErrInvalidInput, got %v", n, err)
			}
		}
	})

	t.Run("non-finite coordinates", func(t *testing.T) {
		for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
			hand := OpenPalmLandmarks()
			hand.Points[MiddleTip].Y = bad

			_, err := Normalize(hand.Points)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("value %v: expected ErrInvalidInput, got %v", bad, err)
			}
		}
	})
}

func TestHandLandmarks_Normalize(t *testing.T) {
	t.Run("nil hand is invalid", func(t *testing.T) {
		var hand *HandLandmarks
		if _, err := hand.Normalize(); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("matches package Normalize", func(t *testing.T) {
		hand := PeaceLandmarks()
		got, err := hand.Normalize()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want, _ := Normalize(hand.Points)
		if got != want {
			t.Error("method and function results differ")
		}
	})
}

func TestFromSlice(t *testing.T) {
	values := make([]float64, FeatureLen)
	values[5] = 0.25

	f, err := FromSlice(values)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f[5] != 0.25 {
		t.Errorf("f[5] = %f, want 0.25", f[5])
	}

	if _, err := FromSlice(values[:10]); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for short slice, got %v", err)
	}
}

func TestPresets_AreDistinct(t *testing.T) {
	presets := map[string]HandLandmarks{
		"thumbs_up": ThumbsUpLandmarks(),
		"open_palm": OpenPalmLandmarks(),
		"peace":     PeaceLandmarks(),
		"fist":      FistLandmarks(),
	}

	vectors := make(map[string]FeatureVector)
	for name, h := range presets {
		if len(h.Points) != NumLandmarks {
			t.Fatalf("%s: got %d points", name, len(h.Points))
		}
		f, err := h.Normalize()
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		vectors[name] = f
	}

	for a, fa := range vectors {
		for b, fb := range vectors {
			if a != b && fa == fb {
				t.Errorf("presets %s and %s normalize to the same vector", a, b)
			}
		}
	}
}

func TestPoint3D_UnmarshalJSON(t *testing.T) {
	var ok []Point3D
	if err := json.Unmarshal([]byte(`[{"x":0.5,"y":-1,"z":0},{"z":3,"y":2,"x":1}]`), &ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok[0] != (Point3D{X: 0.5, Y: -1}) || ok[1] != (Point3D{X: 1, Y: 2, Z: 3}) {
		t.Errorf("decoded %+v", ok)
	}

	tests := []struct {
		name  string
		input string
	}{
		{"missing z", `[{"x":0,"y":1}]`},
		{"null x", `[{"x":null,"y":1,"z":0}]`},
		{"string y", `[{"x":0,"y":"abc","z":0}]`},
		{"bool z", `[{"x":0,"y":1,"z":true}]`},
		{"not an object", `[[0,1,2]]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var points []Point3D
			err := json.Unmarshal([]byte(tt.input), &points)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}
