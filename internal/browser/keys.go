// File: internal/browser/keys.go

package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/input"
)

var chordModifiers = map[string]input.Modifier{
	"control": input.ModifierCtrl,
	"ctrl":    input.ModifierCtrl,
	"alt":     input.ModifierAlt,
	"shift":   input.ModifierShift,
	"meta":    input.ModifierCommand,
	"cmd":     input.ModifierCommand,
	"command": input.ModifierCommand,
}

// namedKeyText maps keys whose CDP keyDown event must carry text for pages
// to observe the keystroke.
var namedKeyText = map[string]string{
	"Enter": "\r",
	"Tab":   "\t",
}

// parseKeyChord splits a key spec like "Enter", "Escape" or "Control+L" into
// its modifier mask and terminal key.
func parseKeyChord(spec string) (input.Modifier, string, string, error) {
	parts := strings.Split(spec, "+")
	if len(parts) == 0 || strings.TrimSpace(parts[len(parts)-1]) == "" {
		return 0, "", "", fmt.Errorf("empty key spec %q", spec)
	}

	var mods input.Modifier
	for _, part := range parts[:len(parts)-1] {
		mod, ok := chordModifiers[strings.ToLower(strings.TrimSpace(part))]
		if !ok {
			return 0, "", "", fmt.Errorf("unknown modifier %q in key spec %q", part, spec)
		}
		mods |= mod
	}

	key := strings.TrimSpace(parts[len(parts)-1])
	return mods, key, namedKeyText[key], nil
}
