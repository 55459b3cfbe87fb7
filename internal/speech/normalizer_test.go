package speech

import "testing"

func TestReconcilePriority(t *testing.T) {
	cases := []struct {
		name                    string
		final, unstable, digits string
		want                    string
	}{
		{"final wins", "yes please", "yes pl", "1", "yes please"},
		{"unstable when no final", "", "yes pl", "1", "yes pl"},
		{"digits last", "", "", "1234", "1234"},
		{"whitespace final falls through", "   ", "maybe", "", "maybe"},
		{"all empty", "", "  ", "", ""},
		{"trims winner", "  hello  ", "", "", "hello"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Reconcile(tc.final, tc.unstable, tc.digits); got != tc.want {
				t.Fatalf("Reconcile(%q, %q, %q) = %q, want %q", tc.final, tc.unstable, tc.digits, got, tc.want)
			}
		})
	}
}

func TestIsTerminationIntent(t *testing.T) {
	positive := []string{
		"goodbye",
		"ok bye bye now",
		"please stop calling me",
		"I'm not interested, thanks",
		"NO ME INTERESA",
		"hasta luego señor",
		"remove my number from the list",
	}
	for _, u := range positive {
		if !IsTerminationIntent(u) {
			t.Errorf("expected termination intent for %q", u)
		}
	}

	negative := []string{
		"",
		"   ",
		"yes tell me more",
		"my number is 555-0100",
		"what is this about",
	}
	for _, u := range negative {
		if IsTerminationIntent(u) {
			t.Errorf("unexpected termination intent for %q", u)
		}
	}
}
