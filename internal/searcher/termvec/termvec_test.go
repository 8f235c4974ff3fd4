package termvec

import (
	"math"
	"reflect"
	"testing"
)

const tol = 1e-9

func vec(weights map[string]float64) *Vector {
	v := New()
	for term, w := range weights {
		v.AddWeight(term, w)
	}
	return v
}

func sumWeights(v *Vector) float64 {
	sum := 0.0
	for _, term := range v.Terms() {
		sum += v.Weight(term)
	}
	return sum
}

func assertLengthConsistent(t *testing.T, v *Vector) {
	t.Helper()
	if got, want := v.Length(), sumWeights(v); math.Abs(got-want) > tol {
		t.Errorf("length = %v, sum of weights = %v", got, want)
	}
}

func TestAddAndStopWords(t *testing.T) {
	v := NewWithStop(func(term string) bool { return term == "the" })
	v.Add("cat")
	v.Add("cat")
	v.Add("the")
	v.Set("the", 5)
	if v.Contains("the") {
		t.Error("Add and Set must drop stop words")
	}
	v.AddWeight("the", 0.5)
	if v.Weight("the") != 0.5 {
		t.Error("AddWeight must bypass the stop filter")
	}
	if v.Weight("cat") != 2 || v.Length() != 2.5 {
		t.Errorf("cat = %v, length = %v", v.Weight("cat"), v.Length())
	}
}

func TestSetIsIdempotent(t *testing.T) {
	v := New()
	v.Set("cat", 3)
	v.Set("cat", 3)
	v.Set("dog", 1)
	if v.Length() != 4 {
		t.Errorf("length = %v, want 4", v.Length())
	}
	assertLengthConsistent(t, v)
}

func TestRemove(t *testing.T) {
	v := vec(map[string]float64{"a": 2, "b": 3})
	v.Remove("a")
	v.Remove("zzz")
	if v.Contains("a") || v.Length() != 3 {
		t.Errorf("after Remove: terms=%v length=%v", v.Terms(), v.Length())
	}
}

func TestClip(t *testing.T) {
	tests := []struct {
		name string
		k    int
		want []string
	}{
		{"top two", 2, []string{"a", "d"}},
		{"tie broken by term", 3, []string{"a", "b", "d"}},
		{"k larger than size", 10, []string{"a", "b", "c", "d"}},
		{"zero", 0, []string{}},
		{"negative", -1, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := vec(map[string]float64{"a": 5, "b": 1, "c": 1, "d": 4})
			v.Clip(tt.k)
			if got := v.Terms(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Clip(%d) terms = %v, want %v", tt.k, got, tt.want)
			}
			wantLen := tt.k
			if wantLen > 4 {
				wantLen = 4
			}
			if wantLen < 0 {
				wantLen = 0
			}
			if v.Len() != wantLen {
				t.Errorf("Len = %d, want %d", v.Len(), wantLen)
			}
			assertLengthConsistent(t, v)
		})
	}
}

func TestNormalize(t *testing.T) {
	v := vec(map[string]float64{"a": 1, "b": 3, "c": 6})
	v.Normalize()
	if math.Abs(sumWeights(v)-1) > tol || math.Abs(v.Length()-1) > tol {
		t.Errorf("sum = %v, length = %v", sumWeights(v), v.Length())
	}
	if math.Abs(v.Weight("c")-0.6) > tol {
		t.Errorf("c = %v, want 0.6", v.Weight("c"))
	}

	zero := vec(map[string]float64{"a": 1, "b": -1})
	zero.Normalize()
	for _, term := range zero.Terms() {
		if zero.Weight(term) != 0 {
			t.Errorf("%s = %v, want 0", term, zero.Weight(term))
		}
	}
	if zero.Length() != 0 {
		t.Errorf("degenerate length = %v, want 0", zero.Length())
	}
}

func TestL2Normalize(t *testing.T) {
	v := vec(map[string]float64{"a": 3, "b": 4})
	v.L2Normalize()
	if math.Abs(v.Norm()-1) > tol {
		t.Errorf("norm = %v, want 1", v.Norm())
	}
	if math.Abs(v.Weight("a")-0.6) > tol || math.Abs(v.Weight("b")-0.8) > tol {
		t.Errorf("weights = %v %v", v.Weight("a"), v.Weight("b"))
	}
	assertLengthConsistent(t, v)

	empty := New()
	empty.L2Normalize()
	if empty.Len() != 0 || empty.Length() != 0 {
		t.Error("empty vector must stay empty")
	}
	zeros := vec(map[string]float64{"a": 0})
	zeros.L2Normalize()
	if zeros.Weight("a") != 0 || math.IsNaN(zeros.Length()) {
		t.Error("all-zero vector must stay zero")
	}
}

func TestInterpolate(t *testing.T) {
	x := vec(map[string]float64{"a": 2})
	y := vec(map[string]float64{"a": 4, "b": 2})

	got := Interpolate(x, y, 0.5)
	if got.Weight("a") != 3 || got.Weight("b") != 1 || got.Len() != 2 {
		t.Errorf("Interpolate = %v", got.Features())
	}
	assertLengthConsistent(t, got)
	if x.Weight("a") != 2 || y.Len() != 2 {
		t.Error("inputs must not be modified")
	}

	sum := Interpolate(x, y, 1.5)
	if sum.Weight("a") != 6 || sum.Weight("b") != 2 {
		t.Errorf("out-of-range weight should sum: %v", sum.Features())
	}
}

type fakeStats struct {
	docCount int64
	df       map[string]int64
	cf       map[string]int64
	collLen  int64
}

func (f fakeStats) DocumentCount() int64                 { return f.docCount }
func (f fakeStats) DocumentFrequency(term string) int64  { return f.df[term] }
func (f fakeStats) TotalTermFrequency(term string) int64 { return f.cf[term] }
func (f fakeStats) CollectionLength() int64              { return f.collLen }

func TestToIDF(t *testing.T) {
	stats := fakeStats{docCount: 100, df: map[string]int64{"a": 9, "b": 49}}
	v := vec(map[string]float64{"a": 2, "b": 1})
	v.ToIDF(stats, false)
	if want := 2 * math.Log(100.0/10); math.Abs(v.Weight("a")-want) > tol {
		t.Errorf("a = %v, want %v", v.Weight("a"), want)
	}
	assertLengthConsistent(t, v)

	v = vec(map[string]float64{"a": 2})
	v.ToIDF(stats, true)
	if want := math.Log(3) * math.Log(10); math.Abs(v.Weight("a")-want) > tol {
		t.Errorf("log tf a = %v, want %v", v.Weight("a"), want)
	}
}

func TestClarity(t *testing.T) {
	stats := fakeStats{cf: map[string]int64{"a": 1, "b": 3}, collLen: 10}
	v := vec(map[string]float64{"a": 1, "b": 1})
	want := 0.5*math.Log(0.5/0.2) + 0.5*math.Log(0.5/0.4)
	if got := v.Clarity(stats); math.Abs(got-want) > tol {
		t.Errorf("Clarity = %v, want %v", got, want)
	}
	if New().Clarity(stats) != 0 {
		t.Error("empty vector clarity must be 0")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	v := vec(map[string]float64{"a": 1})
	c := v.Clone()
	c.AddWeight("a", 1)
	c.Add("b")
	if v.Weight("a") != 1 || v.Contains("b") || v.Length() != 1 {
		t.Error("mutating the clone changed the original")
	}
}

func TestFormat(t *testing.T) {
	v := vec(map[string]float64{"cat": 0.5, "dog": 1.0 / 3, "emu": 2})
	want := "2 emu\n0.5 cat\n0.333333333 dog\n"
	if got := v.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := v.Format(1); got != "2 emu\n" {
		t.Errorf("Format(1) = %q", got)
	}
}

func TestScale(t *testing.T) {
	v := vec(map[string]float64{"a": 2, "b": 6})
	v.Scale(0.25)
	if v.Weight("a") != 0.5 || v.Weight("b") != 1.5 || v.Length() != 2 {
		t.Errorf("Scale: %v length %v", v.Features(), v.Length())
	}
}
