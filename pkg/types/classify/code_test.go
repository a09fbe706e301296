package classify

import "testing"

func TestValidCode(t *testing.T) {
	valid := []string{"8708", "8708.30", "8708.30.10", "8708.30.10.00", "0901.21"}
	for _, c := range valid {
		if !ValidCode(c) {
			t.Errorf("expected %q to be valid", c)
		}
	}
	invalid := []string{"", "870", "87085", "8708.3", "8708-30", "8708.30.10.00.00", "coffee"}
	for _, c := range invalid {
		if ValidCode(c) {
			t.Errorf("expected %q to be invalid", c)
		}
	}
}

func TestChapterOf(t *testing.T) {
	if got := ChapterOf("8708.30"); got != "87" {
		t.Errorf("expected 87, got %s", got)
	}
	if got := ChapterOf("9"); got != "" {
		t.Errorf("expected empty chapter for short code, got %s", got)
	}
}

func TestParentOf(t *testing.T) {
	cases := map[string]string{
		"7318.15.10": "7318.15",
		"7318.15":    "7318",
		"7318":       "",
	}
	for code, want := range cases {
		if got := ParentOf(code); got != want {
			t.Errorf("ParentOf(%q) = %q, want %q", code, got, want)
		}
	}
}

func TestSiblingCodes(t *testing.T) {
	if !SiblingCodes("7318.15", "7318.16") {
		t.Error("7318.15 and 7318.16 should be siblings")
	}
	if SiblingCodes("7318.15", "7318.15") {
		t.Error("a code is not its own sibling")
	}
	if SiblingCodes("7318", "7319") {
		t.Error("bare headings have no parent, so no siblings")
	}
}

func TestTermsOf(t *testing.T) {
	a := TermAnalysis{Tokens: []TermToken{
		{Text: "arabica", Category: TermVariety},
		{Text: "coffee", Category: TermProduct},
		{Text: "roasted", Category: TermProcessing},
		{Text: "bag", Category: TermPackaging},
	}}
	got := a.TermsOf(TermVariety, TermProduct, TermProcessing)
	if len(got) != 3 {
		t.Fatalf("expected 3 terms, got %v", got)
	}
	if got[0] != "arabica" || got[2] != "roasted" {
		t.Errorf("unexpected order: %v", got)
	}
}
