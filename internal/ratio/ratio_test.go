package ratio

import "testing"

func TestIntegerHelpers(t *testing.T) {
	cases := []struct {
		name string
		got  int
		want int
	}{
		{"floor exact", FloorDiv(9, 3), 3},
		{"floor truncates", FloorDiv(8, 3), 2},
		{"ceil exact", CeilDiv(9, 3), 3},
		{"ceil rounds up", CeilDiv(7, 3), 3},
		{"ceil zero", CeilDiv(0, 4), 0},
		{"muldiv", MulDiv(7, 2, 3), 4},
		{"muldiv zero den", MulDiv(7, 2, 0), 0},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("%s: got %d, want %d", tc.name, tc.got, tc.want)
		}
	}
	if !Divides(6, 3) || Divides(7, 3) || Divides(1, 0) {
		t.Fatalf("Divides returned unexpected result")
	}
}
