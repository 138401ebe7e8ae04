package algebra

import (
	"math"
	"testing"
)

func elements() []Value {
	return []Value{AbsZero(), MeasZero(), ResToken(), Real(0), Real(5), Real(-3.7)}
}

func TestIdentities(t *testing.T) {
	for _, x := range elements() {
		if !Add(x, AbsZero()).Equal(x) || !Add(AbsZero(), x).Equal(x) {
			t.Fatalf("AbsZero is not the additive identity for %s", x)
		}
		if !Mul(x, ResToken()).Equal(x) || !Mul(ResToken(), x).Equal(x) {
			t.Fatalf("ResToken is not the multiplicative identity for %s", x)
		}
	}
}

func TestCommutativity(t *testing.T) {
	for _, x := range elements() {
		for _, y := range elements() {
			if !Add(x, y).Equal(Add(y, x)) {
				t.Fatalf("Add not commutative for %s, %s", x, y)
			}
			if !Mul(x, y).Equal(Mul(y, x)) {
				t.Fatalf("Mul not commutative for %s, %s", x, y)
			}
		}
	}
}

func TestAssociativity(t *testing.T) {
	es := []Value{AbsZero(), MeasZero(), ResToken(), Real(0), Real(2), Real(-1)}
	for _, x := range es {
		for _, y := range es {
			for _, z := range es {
				if !Add(Add(x, y), z).Equal(Add(x, Add(y, z))) {
					t.Fatalf("Add not associative for %s, %s, %s", x, y, z)
				}
				if !Mul(Mul(x, y), z).Equal(Mul(x, Mul(y, z))) {
					t.Fatalf("Mul not associative for %s, %s, %s", x, y, z)
				}
			}
		}
	}
}

func TestAbsorption(t *testing.T) {
	for _, x := range elements() {
		if !Add(x, ResToken()).Equal(ResToken()) {
			t.Fatalf("ResToken does not absorb %s under Add", x)
		}
		if !Mul(x, AbsZero()).Equal(AbsZero()) {
			t.Fatalf("AbsZero does not annihilate %s under Mul", x)
		}
	}
}

func TestResTokenDistinctFromReals(t *testing.T) {
	if !Add(ResToken(), ResToken()).Equal(ResToken()) {
		t.Fatal("ResToken + ResToken should stay ResToken")
	}
	if !Add(Real(1), Real(1)).Equal(Real(2)) {
		t.Fatal("1 + 1 should be 2")
	}
	if ResToken().Equal(Real(1)) || ResToken().Equal(Real(2)) {
		t.Fatal("ResToken must not compare equal to any Real")
	}
}

func TestDivisionCoherence(t *testing.T) {
	// MeasZero / MeasZero resolves, and the resolution is transparent under Mul.
	if !Div(MeasZero(), MeasZero()).Equal(ResToken()) {
		t.Fatal("MeasZero / MeasZero should be ResToken")
	}
	if !Mul(Div(MeasZero(), MeasZero()), MeasZero()).Equal(MeasZero()) {
		t.Fatal("(MeasZero / MeasZero) * MeasZero should be MeasZero")
	}
}

func TestDivisionSingularities(t *testing.T) {
	cases := []struct {
		x, y, want Value
	}{
		{Real(0), Real(0), AbsZero()},
		{Real(4), Real(0), MeasZero()},
		{MeasZero(), Real(0), AbsZero()},
		{MeasZero(), Real(3), MeasZero()},
		{ResToken(), Real(3), ResToken()},
		{ResToken(), Real(0), AbsZero()},
		{ResToken(), MeasZero(), MeasZero()},
		{Real(5), MeasZero(), MeasZero()},
		{Real(0), MeasZero(), AbsZero()},
		{AbsZero(), MeasZero(), AbsZero()},
		{AbsZero(), Real(7), AbsZero()},
		{Real(9), AbsZero(), AbsZero()},
		{Real(9), ResToken(), Real(9)},
	}
	for _, c := range cases {
		if got := Div(c.x, c.y); !got.Equal(c.want) {
			t.Fatalf("Div(%s, %s) = %s, want %s", c.x, c.y, got, c.want)
		}
	}
}

func TestDistributivityHolds(t *testing.T) {
	// Cancellation-free triples distribute.
	x, y, z := Real(5), Real(3), Real(2)
	if !Mul(x, Add(y, z)).Equal(Add(Mul(x, y), Mul(x, z))) {
		t.Fatal("distributivity should hold for plain reals")
	}
	if !Mul(AbsZero(), Add(Real(3), MeasZero())).Equal(Add(Mul(AbsZero(), Real(3)), Mul(AbsZero(), MeasZero()))) {
		t.Fatal("distributivity should hold with the annihilator")
	}
	if !Mul(ResToken(), Add(Real(3), MeasZero())).Equal(Add(Mul(ResToken(), Real(3)), Mul(ResToken(), MeasZero()))) {
		t.Fatal("distributivity should hold with the identity")
	}
}

func TestDistributivityFailsOnCancellation(t *testing.T) {
	// MeasZero times a cancelling Real sum collapses to AbsZero on the left
	// but stays MeasZero on the right. Intrinsic to the algebra.
	lhs := Mul(MeasZero(), Add(Real(3), Real(-3)))
	rhs := Add(Mul(MeasZero(), Real(3)), Mul(MeasZero(), Real(-3)))
	if lhs.Equal(rhs) {
		t.Fatal("cancellation triple should break distributivity")
	}
	if !lhs.Equal(AbsZero()) || !rhs.Equal(MeasZero()) {
		t.Fatalf("cancellation triple: lhs=%s rhs=%s", lhs, rhs)
	}
}

func TestDistributivityFailsOnAbsorption(t *testing.T) {
	// A Real times a sum containing ResToken: absorption beats magnitude.
	lhs := Mul(Real(5), Add(Real(3), ResToken()))
	rhs := Add(Mul(Real(5), Real(3)), Mul(Real(5), ResToken()))
	if lhs.Equal(rhs) {
		t.Fatal("absorption triple should break distributivity")
	}
	if !lhs.Equal(Real(5)) || !rhs.Equal(Real(20)) {
		t.Fatalf("absorption triple: lhs=%s rhs=%s", lhs, rhs)
	}
}

func TestMonotonicity(t *testing.T) {
	chain := []Value{AbsZero(), MeasZero(), ResToken()}
	for _, s := range elements() {
		for i := 0; i+1 < len(chain); i++ {
			if Add(s, chain[i]).Level() > Add(s, chain[i+1]).Level() {
				t.Fatalf("Add not monotone for %s at chain position %d", s, i)
			}
			if Mul(s, chain[i]).Level() > Mul(s, chain[i+1]).Level() {
				t.Fatalf("Mul not monotone for %s at chain position %d", s, i)
			}
		}
	}
}

func TestAggregates(t *testing.T) {
	m := []Value{Real(500), MeasZero(), AbsZero()}
	if Count(m) != 2 {
		t.Fatalf("Count = %d, want 2", Count(m))
	}
	if !Sum(m).Equal(Real(500)) {
		t.Fatalf("Sum = %s, want Real(500)", Sum(m))
	}
	if !Avg(m).Equal(Real(250)) {
		t.Fatalf("Avg = %s, want Real(250)", Avg(m))
	}

	m2 := []Value{Real(50), Real(30), MeasZero(), AbsZero(), MeasZero()}
	if Count(m2) != 4 || !Sum(m2).Equal(Real(80)) || !Avg(m2).Equal(Real(20)) {
		t.Fatalf("aggregate mismatch: count=%d sum=%s avg=%s", Count(m2), Sum(m2), Avg(m2))
	}

	m3 := []Value{AbsZero(), AbsZero(), AbsZero()}
	if Count(m3) != 0 || !Sum(m3).Equal(AbsZero()) || !Avg(m3).Equal(AbsZero()) {
		t.Fatal("all-inapplicable aggregates should collapse to AbsZero")
	}
}

func TestAvgCountsIndeterminateInDenominator(t *testing.T) {
	// Same numbers, one element differs only in type: the fused results differ.
	withMeas := Avg([]Value{Real(10), Real(10), MeasZero()})
	withAbs := Avg([]Value{Real(10), Real(10), AbsZero()})
	vm, _ := withMeas.Float()
	va, _ := withAbs.Float()
	if math.Abs(vm-20.0/3.0) > 1e-9 {
		t.Fatalf("avg with MeasZero = %v, want 20/3", vm)
	}
	if math.Abs(va-10.0) > 1e-9 {
		t.Fatalf("avg with AbsZero = %v, want 10", va)
	}
}
