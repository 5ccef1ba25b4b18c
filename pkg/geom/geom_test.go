package geom

import (
	"errors"
	"math"
	"testing"
)

func TestVecArithmetic(t *testing.T) {
	a := V(1, 2, 3)
	b := V(4, 5, 6)

	if got := a.Add(b); got != V(5, 7, 9) {
		t.Errorf("Add = %v", got)
	}
	if got := b.Sub(a); got != V(3, 3, 3) {
		t.Errorf("Sub = %v", got)
	}
	if got := a.Dot(b); got != 32 {
		t.Errorf("Dot = %v", got)
	}
	if got := XDir.Cross(YDir); got != ZDir {
		t.Errorf("Cross = %v, want +Z", got)
	}
	if got := V(3, 4, 0).Length(); got != 5 {
		t.Errorf("Length = %v", got)
	}
}

func TestNormalize(t *testing.T) {
	n := V(0, 0, 10).Normalize()
	if n != ZDir {
		t.Errorf("Normalize = %v", n)
	}
	if z := (Vec3{}).Normalize(); z != (Vec3{}) {
		t.Errorf("zero Normalize = %v", z)
	}
}

func TestNear(t *testing.T) {
	a := V(1, 1, 1)
	if !a.Near(V(1+1e-7, 1, 1), 1e-6) {
		t.Error("expected near within tolerance")
	}
	if a.Near(V(1+1e-5, 1, 1), 1e-6) {
		t.Error("expected not near outside tolerance")
	}
}

func TestIsFinite(t *testing.T) {
	if !V(1, 2, 3).IsFinite() {
		t.Error("finite vector reported non-finite")
	}
	if V(math.NaN(), 0, 0).IsFinite() {
		t.Error("NaN reported finite")
	}
	if V(0, math.Inf(1), 0).IsFinite() {
		t.Error("Inf reported finite")
	}
}

func TestNewAxis(t *testing.T) {
	tests := []struct {
		name    string
		loc     Vec3
		dir     Vec3
		wantErr error
	}{
		{"valid", V(1, 2, 3), V(0, 0, 5), nil},
		{"zero direction", V(0, 0, 0), Vec3{}, ErrZeroDirection},
		{"nan location", V(math.NaN(), 0, 0), ZDir, ErrNonFinite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ax, err := NewAxis(tt.loc, tt.dir)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err == nil && ax.Direction != ZDir {
				t.Errorf("direction = %v, want normalized +Z", ax.Direction)
			}
		})
	}
}
