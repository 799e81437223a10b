// File: internal/browser/keys_test.go
package browser

import (
	"testing"

	"github.com/chromedp/cdproto/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyChord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		spec     string
		wantMods input.Modifier
		wantKey  string
		wantText string
		wantErr  bool
	}{
		{name: "plain named key", spec: "Escape", wantKey: "Escape"},
		{name: "enter carries text", spec: "Enter", wantKey: "Enter", wantText: "\r"},
		{name: "tab carries text", spec: "Tab", wantKey: "Tab", wantText: "\t"},
		{name: "control chord", spec: "Control+L", wantMods: input.ModifierCtrl, wantKey: "L"},
		{name: "ctrl alias", spec: "ctrl+a", wantMods: input.ModifierCtrl, wantKey: "a"},
		{name: "stacked modifiers", spec: "Control+Shift+Tab",
			wantMods: input.ModifierCtrl | input.ModifierShift, wantKey: "Tab", wantText: "\t"},
		{name: "meta alias", spec: "cmd+ArrowLeft", wantMods: input.ModifierCommand, wantKey: "ArrowLeft"},
		{name: "unknown modifier", spec: "Hyper+K", wantErr: true},
		{name: "trailing plus", spec: "Control+", wantErr: true},
		{name: "empty", spec: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			mods, key, text, err := parseKeyChord(tc.spec)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantMods, mods)
			assert.Equal(t, tc.wantKey, key)
			assert.Equal(t, tc.wantText, text)
		})
	}
}
