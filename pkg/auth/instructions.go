package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowCookieExtractionGuide prints step-by-step instructions for copying
// the X session cookies out of a browser
func ShowCookieExtractionGuide(w io.Writer) {
	rule := strings.Repeat("=", 80)
	lines := []string{
		rule,
		"📚 X SESSION COOKIE GUIDE",
		rule,
		"",
		"Posts behind the login wall only render for a signed-in browser.",
		"Copy two cookies from a browser where you are logged in to x.com:",
		"",
		"🌐 STEP 1: Open https://x.com and make sure your timeline loads",
		"",
		"🔧 STEP 2: Open Developer Tools",
		"   • Chrome/Edge/Brave: F12 or Ctrl+Shift+I (Cmd+Option+I on Mac)",
		"   • Firefox: F12 or Ctrl+Shift+I (Cmd+Option+I on Mac)",
		"",
		"🍪 STEP 3: Application (Chrome) or Storage (Firefox) → Cookies → https://x.com",
		"",
		"🔑 STEP 4: Copy these values:",
		"   ┌─────────────┬──────────────────────────────────────────────┐",
		"   │ Cookie Name │ What it looks like                           │",
		"   ├─────────────┼──────────────────────────────────────────────┤",
		"   │ auth_token  │ 40 hex characters                            │",
		"   ├─────────────┼──────────────────────────────────────────────┤",
		"   │ ct0         │ long hex string, 32 to 160 characters        │",
		"   └─────────────┴──────────────────────────────────────────────┘",
		"",
		"💡 TIPS:",
		"   • Copy the value only, without quotes or semicolons",
		"   • Logging out of x.com invalidates both cookies",
		"   • A cookies.txt or cookies.json export works too: pass it with --cookies",
		"",
		"⚠️  SECURITY WARNING:",
		"   • auth_token gives full access to your account. Never share it",
		"",
		rule,
		"",
	}
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

// ShowQuickExtractGuide prints the condensed version
func ShowQuickExtractGuide(w io.Writer) {
	fmt.Fprintln(w, "\n🍪 Quick Guide: F12 → Application → Cookies → https://x.com")
	fmt.Fprintln(w, "   Need: auth_token=... and ct0=...")
	fmt.Fprintln(w, "   Type 'help' for detailed instructions")
}
