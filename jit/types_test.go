// Copyright 2025 go-jitrace Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jit

import (
	"errors"
	"strings"
	"testing"
)

func TestTypeNames(t *testing.T) {
	tests := []struct {
		typ  ArrayType
		want string
	}{
		{Scalar(KindInt32), "int32"},
		{Array3f, "Array3f"},
		{ArrayXi, "ArrayXi"},
		{ArrayXu64, "ArrayXu64"},
		{Array3Xf, "Array3Xf"},
		{ArrayXXb, "ArrayXXb"},
		{Complex2f, "Complex2f"},
		{MatrixType(KindFloat32, 3), "Matrix3f"},
	}
	for _, tt := range tests {
		if got := tt.typ.Name(); got != tt.want {
			t.Errorf("Name() = %q, want %q", got, tt.want)
		}
	}
}

func TestPromoteKind(t *testing.T) {
	tests := []struct {
		a, b, want Kind
	}{
		{KindBool, KindInt32, KindInt32},
		{KindInt32, KindUInt32, KindUInt32},
		{KindUInt32, KindInt64, KindInt64},
		{KindInt64, KindFloat32, KindFloat32},
		{KindFloat32, KindFloat64, KindFloat64},
		{KindFloat64, KindBool, KindFloat64},
	}
	for _, tt := range tests {
		if got := PromoteKind(tt.a, tt.b); got != tt.want {
			t.Errorf("PromoteKind(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestPromote(t *testing.T) {
	tests := []struct {
		name string
		a, b ArrayType
		want ArrayType
	}{
		{"same", Array3f, Array3f, Array3f},
		{"widen kind", Array3i, Array3f, Array3f},
		{"scalar broadcast", Scalar(KindFloat32), ArrayXi, ArrayXf},
		{"dynamic adopts fixed", ArrayXf, Array3f, Array3f},
		{"depth broadcast", ArrayXf, Array3Xf, Array3Xf},
		{"scalar keeps family", Scalar(KindFloat32), Complex2f, Complex2f},
		{"bool to int", ArrayXb, ArrayXi, ArrayXi},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Promote(tt.a, tt.b)
			if err != nil {
				t.Fatalf("Promote(%s, %s): %v", tt.a, tt.b, err)
			}
			if got != tt.want {
				t.Errorf("Promote(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestPromoteErrors(t *testing.T) {
	tests := []struct {
		name   string
		a, b   ArrayType
		target error
		substr string
	}{
		{"sizes", Array3f, Array4f, ErrIncompatibleSize, "incompatible sizes (3 and 4)"},
		{"families", Array2f, Complex2f, ErrIncompatibleType, "Incompatible arguments"},
		{"nested sizes", Array3Xf, NewType(KindFloat32, 4, Dynamic), ErrIncompatibleSize, "Incompatible arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Promote(tt.a, tt.b)
			if err == nil {
				t.Fatalf("Promote(%s, %s) succeeded", tt.a, tt.b)
			}
			if !errors.Is(err, tt.target) {
				t.Errorf("error %v is not %v", err, tt.target)
			}
			if !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("error %q does not contain %q", err, tt.substr)
			}
		})
	}
}

func TestInnerAndMask(t *testing.T) {
	if got := Array3Xf.Inner(); got != ArrayXf {
		t.Errorf("Array3Xf.Inner() = %s, want ArrayXf", got)
	}
	if got := Array3f.Inner(); got != Scalar(KindFloat32) {
		t.Errorf("Array3f.Inner() = %s, want float32", got)
	}
	if got := Array3Xf.Mask(); got != Array3Xb {
		t.Errorf("Array3Xf.Mask() = %s, want Array3Xb", got)
	}
	if !ArrayXf.IsLeaf() || Array3Xf.IsLeaf() {
		t.Error("IsLeaf disagrees with depth")
	}
}

type fakeInfo struct{}

func (fakeInfo) Kind() Kind     { return KindInt64 }
func (fakeInfo) Family() Family { return FamilyArray }
func (fakeInfo) Depth() int     { return 1 }
func (fakeInfo) Dim(int) int    { return Dynamic }

func TestPromoteTypeInfo(t *testing.T) {
	got, err := Promote(fakeInfo{}, Array3f)
	if err != nil {
		t.Fatal(err)
	}
	if got != Array3f {
		t.Errorf("Promote(fake ArrayXi64, Array3f) = %s, want Array3f", got)
	}
}

func TestHostType(t *testing.T) {
	tests := []struct {
		v    any
		want ArrayType
	}{
		{1, Scalar(KindInt32)},
		{2.5, Scalar(KindFloat32)},
		{true, Scalar(KindBool)},
		{[]int{1, 2, 3}, NewType(KindInt32, 3)},
		{[]any{1, 2.5}, NewType(KindFloat32, 2)},
		{[][]int{{1, 2}, {3}}, NewType(KindInt32, 2, Dynamic)},
		{BufferOf[float64](1, 2), NewType(KindFloat64, 2)},
	}
	for _, tt := range tests {
		got, err := HostType(tt.v)
		if err != nil {
			t.Errorf("HostType(%v): %v", tt.v, err)
			continue
		}
		if got != tt.want {
			t.Errorf("HostType(%v) = %s, want %s", tt.v, got, tt.want)
		}
	}
	if _, err := HostType("text"); !errors.Is(err, ErrIncompatibleType) {
		t.Errorf("HostType(string) error = %v, want IncompatibleType", err)
	}
}
