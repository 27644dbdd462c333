package template

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusRejected, true},
		{StatusApproved, StatusPaused, true},
		{StatusApproved, StatusDisabled, true},
		{StatusPending, StatusPaused, false},
		{StatusRejected, StatusApproved, false},
		{StatusApproved, StatusPending, false},
		{StatusDisabled, StatusApproved, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCanonicalLanguage(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"EN-us", "en_US"},
		{"en_US", "en_US"},
		{"pt-br", "pt_BR"},
		{"de", "de"},
	}
	for _, tc := range cases {
		got, err := CanonicalLanguage(tc.in)
		if err != nil {
			t.Errorf("CanonicalLanguage(%q) error = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("CanonicalLanguage(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCanonicalLanguageRejectsGarbage(t *testing.T) {
	if _, err := CanonicalLanguage("!!"); err == nil {
		t.Error("CanonicalLanguage(\"!!\") should fail")
	}
}

func TestStatusKey(t *testing.T) {
	tmpl := &Item{WabaID: "waba-1", Name: "order_update", Language: "en_US", Status: StatusApproved}
	if got := tmpl.StatusKey(); got != "TEMPLATE#waba-1#APPROVED" {
		t.Errorf("StatusKey() = %q", got)
	}
	if got := tmpl.PK(); got != "TEMPLATE#waba-1#order_update#en_US" {
		t.Errorf("PK() = %q", got)
	}
}
