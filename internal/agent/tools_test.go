// File: internal/agent/tools_test.go
package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/innova-space-edu/mira-agentd/internal/session"
)

func newToolFixture(t *testing.T) (*Executor, *session.Session, func()) {
	t.Helper()
	reg := session.NewRegistry(18, zap.NewNop())
	sess, release := reg.Acquire("tool-test")
	return NewExecutor(zap.NewNop()), sess, release
}

func decodeResult(t *testing.T, raw string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.UnmarshalFromString(raw, &out))
	return out
}

func execute(t *testing.T, e *Executor, sess *session.Session, name, argsJSON string) map[string]any {
	t.Helper()
	raw := e.Execute(context.Background(), sess, ToolCall{ID: "tc", Name: name, ArgumentsJSON: argsJSON})
	return decodeResult(t, raw)
}

func TestSetPlanStepBoundaries(t *testing.T) {
	tests := []struct {
		steps    int
		accepted bool
	}{
		{1, false},
		{2, true},
		{6, true},
		{7, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("steps=%d", tt.steps), func(t *testing.T) {
			e, sess, release := newToolFixture(t)
			defer release()

			steps := make([]string, tt.steps)
			for i := range steps {
				steps[i] = fmt.Sprintf("paso %d", i+1)
			}
			args, err := json.MarshalToString(map[string]any{
				"goal":             "objetivo",
				"steps":            steps,
				"confirm_required": false,
			})
			require.NoError(t, err)

			res := execute(t, e, sess, "set_plan", args)

			if tt.accepted {
				assert.Equal(t, true, res["ok"])
				require.NotNil(t, sess.Plan())
				assert.Len(t, sess.Plan().Steps, tt.steps)
			} else {
				assert.Contains(t, res["error"], "between 2 and 6")
				assert.Nil(t, sess.Plan())
			}
		})
	}
}

func TestSetPlanOverwritesWithinTurn(t *testing.T) {
	e, sess, release := newToolFixture(t)
	defer release()

	execute(t, e, sess, "set_plan", `{"goal":"primero","steps":["a","b"],"confirm_required":false}`)
	execute(t, e, sess, "set_plan", `{"goal":"segundo","steps":["c","d"],"confirm_required":true}`)

	require.NotNil(t, sess.Plan())
	assert.Equal(t, "segundo", sess.Plan().Goal)
	assert.True(t, sess.Plan().ConfirmRequired)
}

func TestSetPlanLogsSummary(t *testing.T) {
	e, sess, release := newToolFixture(t)
	defer release()

	execute(t, e, sess, "set_plan",
		`{"goal":"abrir youtube","steps":["abrir","reproducir"],"needs_user":["confirmar canción"],"confirm_required":true}`)

	logs := strings.Join(sess.Logs(), "\n")
	assert.Contains(t, logs, "PLAN creado: abrir youtube")
	assert.Contains(t, logs, "1. abrir")
	assert.Contains(t, logs, "2. reproducir")
	assert.Contains(t, logs, "confirmación")
	assert.Contains(t, logs, "confirmar canción")
}

func TestOpenURLEnqueuesActionOnly(t *testing.T) {
	e, sess, release := newToolFixture(t)
	defer release()

	res := execute(t, e, sess, "open_url", `{"url":"https://www.youtube.com"}`)

	assert.Equal(t, true, res["ok"])
	require.Len(t, sess.Actions(), 1)
	assert.Equal(t, session.Action{Type: "open_url", URL: "https://www.youtube.com"}, sess.Actions()[0])
	assert.NotEmpty(t, sess.Logs())
}

func TestUnknownToolReturnsStructuredError(t *testing.T) {
	e, sess, release := newToolFixture(t)
	defer release()

	res := execute(t, e, sess, "fly_to_moon", `{}`)

	assert.Equal(t, "Unknown tool", res["error"])
	require.NotEmpty(t, sess.Logs())
	assert.Contains(t, sess.Logs()[0], "fly_to_moon")
}

func TestMalformedArgumentsBecomeStructuredErrors(t *testing.T) {
	e, sess, release := newToolFixture(t)
	defer release()

	for _, name := range []string{"set_plan", "web_fetch", "open_url"} {
		res := execute(t, e, sess, name, `{not json`)
		assert.Contains(t, res["error"], "invalid", "tool %s", name)
	}
}

func TestWebFetchExtractsTextAndMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, fetchUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><p>Hola mundo<script>evil()</script></p></body></html>")
	}))
	defer srv.Close()

	e, sess, release := newToolFixture(t)
	defer release()
	defer e.httpClient.CloseIdleConnections()

	res := execute(t, e, sess, "web_fetch", fmt.Sprintf(`{"url":%q}`, srv.URL))

	assert.Equal(t, srv.URL, res["url"])
	assert.EqualValues(t, 200, res["status"])
	assert.Contains(t, res["contentType"], "text/html")
	assert.Contains(t, res["text"], "Hola mundo")
	assert.NotContains(t, res["text"], "evil()")

	logs := strings.Join(sess.Logs(), "\n")
	assert.Contains(t, logs, "web_fetch status 200")
	assert.Contains(t, logs, "text/html")
}

func TestWebFetchNonOKStatusIsANormalResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	}))
	defer srv.Close()

	e, sess, release := newToolFixture(t)
	defer release()
	defer e.httpClient.CloseIdleConnections()

	res := execute(t, e, sess, "web_fetch", fmt.Sprintf(`{"url":%q}`, srv.URL))

	assert.NotContains(t, res, "error")
	assert.EqualValues(t, 404, res["status"])
}

func TestWebFetchTruncatesToMaxChars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<p>%s</p>", strings.Repeat("x", 500))
	}))
	defer srv.Close()

	e, sess, release := newToolFixture(t)
	defer release()
	defer e.httpClient.CloseIdleConnections()

	res := execute(t, e, sess, "web_fetch", fmt.Sprintf(`{"url":%q,"max_chars":100}`, srv.URL))

	text, ok := res["text"].(string)
	require.True(t, ok)
	assert.Len(t, text, 100)
}

func TestWebFetchTruncationCountsCharactersNotBytes(t *testing.T) {
	// Two bytes per character; byte-based truncation would return half the
	// characters asked for.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<p>%s</p>", strings.Repeat("ñ", 500))
	}))
	defer srv.Close()

	e, sess, release := newToolFixture(t)
	defer release()
	defer e.httpClient.CloseIdleConnections()

	res := execute(t, e, sess, "web_fetch", fmt.Sprintf(`{"url":%q,"max_chars":100}`, srv.URL))

	text, ok := res["text"].(string)
	require.True(t, ok)
	assert.Equal(t, 100, utf8.RuneCountInString(text))
	assert.Equal(t, strings.Repeat("ñ", 100), text)

	logs := strings.Join(sess.Logs(), "\n")
	assert.Contains(t, logs, "Texto extraído: 100 chars")
}

func TestWebFetchConnectionErrorIsStructured(t *testing.T) {
	e, sess, release := newToolFixture(t)
	defer release()

	// Closed port; the request must fail fast and become a result.
	res := execute(t, e, sess, "web_fetch", `{"url":"http://127.0.0.1:1/nope"}`)

	assert.Contains(t, res["error"], "fetch failed")
	logs := strings.Join(sess.Logs(), "\n")
	assert.Contains(t, logs, "web_fetch error")
}

func TestToolDefinitionsCoverTheClosedSet(t *testing.T) {
	e := NewExecutor(zap.NewNop())

	names := make([]string, 0, len(e.Definitions()))
	for _, d := range e.Definitions() {
		names = append(names, d.Name)
		assert.NotEmpty(t, d.Description)
		assert.Equal(t, "object", d.Parameters["type"])
	}
	assert.ElementsMatch(t, []string{"set_plan", "web_fetch", "open_url"}, names)
}
