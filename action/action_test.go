package action

import "testing"

func TestFromCode(t *testing.T) {
	cases := []struct {
		in   uint8
		want Action
	}{
		{0, Cooperate},
		{1, Defect},
		{2, Merge},
		{3, Split},
		{4, Cooperate}, // masked to 0
		{7, Split},     // masked to 3
	}
	for _, c := range cases {
		if got := FromCode(c.in); got != c.want {
			t.Errorf("FromCode(%d) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestCodeRoundTrip(t *testing.T) {
	for a := Cooperate; a <= Split; a++ {
		if FromCode(a.Code()) != a {
			t.Errorf("round trip failed for %v", a)
		}
	}
}

func TestString(t *testing.T) {
	want := map[Action]string{Cooperate: "C", Defect: "D", Merge: "M", Split: "S"}
	for a, s := range want {
		if a.String() != s {
			t.Errorf("Action(%d).String() = %q, want %q", a, a.String(), s)
		}
	}
}
