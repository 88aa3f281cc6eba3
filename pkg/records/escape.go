package records

// Spreadsheet applications evaluate cells starting with these characters.
func isFormulaTrigger(c byte) bool {
	switch c {
	case '=', '+', '-', '@', '\t', '\r':
		return true
	}
	return false
}

// needsEscape also covers values that already start with a quote followed by
// a trigger, so that unescape(escape(v)) == v for every v.
func needsEscape(v string) bool {
	for i := 0; i < len(v); i++ {
		if isFormulaTrigger(v[i]) {
			return true
		}
		if v[i] != '\'' {
			return false
		}
	}
	return false
}

func escapeField(v string) string {
	if needsEscape(v) {
		return "'" + v
	}
	return v
}

func unescapeField(v string) string {
	if len(v) > 1 && v[0] == '\'' && needsEscape(v[1:]) {
		return v[1:]
	}
	return v
}
