package classify

import "regexp"

// codePattern accepts 4, 6, 8, or 10 digit tariff codes with optional dot
// separators: 8708, 8708.30, 8708.30.10, 8708.30.10.00.
var codePattern = regexp.MustCompile(`^\d{4}(\.\d{2})?(\.\d{2})?(\.\d{2})?$`)

// ValidCode reports whether s is a well-formed tariff code.
func ValidCode(s string) bool {
	return codePattern.MatchString(s)
}

// ChapterOf returns the chapter (first two digits) of a tariff code, or ""
// when the code is too short.
func ChapterOf(code string) string {
	if len(code) < 2 {
		return ""
	}
	return code[:2]
}

// HeadingOf returns the heading (first four digits) of a tariff code, or ""
// when the code is too short.
func HeadingOf(code string) string {
	if len(code) < 4 {
		return ""
	}
	return code[:4]
}

// ParentOf returns the immediate parent code: one dotted segment removed.
// ParentOf("7318.15.10") == "7318.15"; a bare heading has no parent.
func ParentOf(code string) string {
	for i := len(code) - 1; i >= 0; i-- {
		if code[i] == '.' {
			return code[:i]
		}
	}
	return ""
}

// SiblingCodes reports whether two codes share the same immediate parent.
func SiblingCodes(a, b string) bool {
	pa, pb := ParentOf(a), ParentOf(b)
	return pa != "" && pa == pb && a != b
}
