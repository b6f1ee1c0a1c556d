package textutil

import "testing"

func TestPlainText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "Lagos Island", want: "Lagos Island"},
		{in: "  Ibadan,\n  Oyo ", want: "Ibadan, Oyo"},
		{in: "<b>Lekki</b> & Ajah", want: "Lekki & Ajah"},
		{in: `<script>alert("x")</script>Abuja`, want: "Abuja"},
		{in: `<a href="javascript:x">Ogun</a> road`, want: "Ogun road"},
		{in: "", want: ""},
	}
	for _, tc := range cases {
		if got := PlainText(tc.in); got != tc.want {
			t.Errorf("PlainText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPlainTextPtr(t *testing.T) {
	if PlainTextPtr(nil) != nil {
		t.Fatal("expected nil for nil input")
	}
	in := " <i>Oyo</i> "
	if got := PlainTextPtr(&in); got == nil || *got != "Oyo" {
		t.Fatalf("unexpected result %v", got)
	}
}
