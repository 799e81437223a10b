// File: internal/agent/tools.go
package agent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/innova-space-edu/mira-agentd/internal/session"
)

// Tool names form a closed set; the dispatch table is built once at startup
// and unknown names fall through to a structured error the model can observe.
const (
	toolSetPlan  = "set_plan"
	toolWebFetch = "web_fetch"
	toolOpenURL  = "open_url"
)

const (
	fetchUserAgent       = "MIRA-Agent/1.0 (+https://innova-space-edu.github.io/mira-agent/)"
	defaultFetchMaxChars = 12000
	// maxFetchBody caps how much of a response body is read before text
	// extraction; pages larger than this are truncated at the wire.
	maxFetchBody = 2 << 20
)

const (
	minPlanSteps = 2
	maxPlanSteps = 6
)

type toolHandler func(ctx context.Context, sess *session.Session, argsJSON string) any

// Executor dispatches tool invocations from the model to their handlers.
// Handlers mutate the turn-scoped state of the session they are given and
// never abort the agent loop: failures become structured results.
type Executor struct {
	logger     *zap.Logger
	httpClient *http.Client
	// limiter keeps web_fetch polite; one shared bucket per process.
	limiter  *rate.Limiter
	handlers map[string]toolHandler
	defs     []ToolDefinition
}

// NewExecutor builds the tool table.
func NewExecutor(logger *zap.Logger) *Executor {
	e := &Executor{
		logger:     logger.Named("tool_executor"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(2), 4),
	}
	e.handlers = map[string]toolHandler{
		toolSetPlan:  e.runSetPlan,
		toolWebFetch: e.runWebFetch,
		toolOpenURL:  e.runOpenURL,
	}
	e.defs = toolDefinitions()
	return e
}

// Definitions returns the tool schemas advertised to the model.
func (e *Executor) Definitions() []ToolDefinition { return e.defs }

// Execute runs a single tool call against the given (already locked) session
// record and returns the JSON-encoded result to feed back as an observation.
func (e *Executor) Execute(ctx context.Context, sess *session.Session, call ToolCall) string {
	handler, ok := e.handlers[call.Name]
	if !ok {
		e.logger.Warn("Model requested an unknown tool.",
			zap.String("session_id", sess.ID()), zap.String("tool", call.Name))
		sess.AppendLog(fmt.Sprintf("⚠ Tool desconocida: %s", call.Name))
		return encodeResult(map[string]any{"error": "Unknown tool"})
	}
	return encodeResult(handler(ctx, sess, call.ArgumentsJSON))
}

func encodeResult(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return `{"error":"tool result not serializable"}`
	}
	return string(out)
}

type setPlanArgs struct {
	Goal            string   `json:"goal"`
	Steps           []string `json:"steps"`
	NeedsUser       []string `json:"needs_user"`
	ConfirmRequired bool     `json:"confirm_required"`
}

func (e *Executor) runSetPlan(_ context.Context, sess *session.Session, argsJSON string) any {
	var args setPlanArgs
	if err := json.UnmarshalFromString(argsJSON, &args); err != nil {
		return map[string]any{"error": fmt.Sprintf("invalid set_plan arguments: %v", err)}
	}

	if len(args.Steps) < minPlanSteps || len(args.Steps) > maxPlanSteps {
		e.logger.Warn("Rejected plan with out-of-range step count.",
			zap.String("session_id", sess.ID()), zap.Int("steps", len(args.Steps)))
		sess.AppendLog(fmt.Sprintf("⚠ Plan rechazado: se requieren de %d a %d pasos.", minPlanSteps, maxPlanSteps))
		return map[string]any{"error": fmt.Sprintf("steps must contain between %d and %d entries", minPlanSteps, maxPlanSteps)}
	}

	plan := &session.Plan{
		Goal:            args.Goal,
		Steps:           args.Steps,
		NeedsUser:       args.NeedsUser,
		ConfirmRequired: args.ConfirmRequired,
	}
	if plan.NeedsUser == nil {
		plan.NeedsUser = []string{}
	}
	sess.SetPlan(plan)

	sess.AppendLog(fmt.Sprintf("🧠 PLAN creado: %s", plan.Goal))
	for i, step := range plan.Steps {
		sess.AppendLog(fmt.Sprintf("  %d. %s", i+1, step))
	}
	if plan.ConfirmRequired {
		sess.AppendLog("🔒 Requiere confirmación del usuario.")
	}
	if len(plan.NeedsUser) > 0 {
		sess.AppendLog(fmt.Sprintf("🙋 Necesito del usuario: %s", strings.Join(plan.NeedsUser, " | ")))
	}

	return map[string]any{"ok": true, "stored": true}
}

type webFetchArgs struct {
	URL      string `json:"url"`
	MaxChars int    `json:"max_chars"`
}

func (e *Executor) runWebFetch(ctx context.Context, sess *session.Session, argsJSON string) any {
	var args webFetchArgs
	if err := json.UnmarshalFromString(argsJSON, &args); err != nil {
		return map[string]any{"error": fmt.Sprintf("invalid web_fetch arguments: %v", err)}
	}
	maxChars := args.MaxChars
	if maxChars <= 0 {
		maxChars = defaultFetchMaxChars
	}

	sess.AppendLog(fmt.Sprintf("🌐 web_fetch: %s", args.URL))

	if err := e.limiter.Wait(ctx); err != nil {
		return map[string]any{"error": fmt.Sprintf("fetch cancelled: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, args.URL, nil)
	if err != nil {
		sess.AppendLog(fmt.Sprintf("⚠ web_fetch error: %v", err))
		return map[string]any{"error": fmt.Sprintf("invalid url: %v", err)}
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.logger.Warn("web_fetch request failed.",
			zap.String("session_id", sess.ID()), zap.String("url", args.URL), zap.Error(err))
		sess.AppendLog(fmt.Sprintf("⚠ web_fetch error: %v", err))
		return map[string]any{"error": fmt.Sprintf("fetch failed: %v", err)}
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		sess.AppendLog(fmt.Sprintf("⚠ web_fetch error: %v", err))
		return map[string]any{"error": fmt.Sprintf("reading body failed: %v", err)}
	}

	// max_chars counts characters, not bytes; non-ASCII pages must not be
	// cut short.
	text := extractText(string(raw))
	if utf8.RuneCountInString(text) > maxChars {
		text = string([]rune(text)[:maxChars])
	}

	mime, _, _ := strings.Cut(contentType, ";")
	if mime == "" {
		mime = "unknown"
	}
	sess.AppendLog(fmt.Sprintf("✅ web_fetch status %d (%s)", resp.StatusCode, mime))
	sess.AppendLog(fmt.Sprintf("📄 Texto extraído: %d chars", utf8.RuneCountInString(text)))

	// A non-2xx status is a normal result, not an error: the model decides
	// what to do with it.
	return map[string]any{
		"url":         args.URL,
		"status":      resp.StatusCode,
		"contentType": contentType,
		"text":        text,
	}
}

type openURLArgs struct {
	URL string `json:"url"`
}

func (e *Executor) runOpenURL(_ context.Context, sess *session.Session, argsJSON string) any {
	var args openURLArgs
	if err := json.UnmarshalFromString(argsJSON, &args); err != nil {
		return map[string]any{"error": fmt.Sprintf("invalid open_url arguments: %v", err)}
	}

	// open_url never navigates anything itself; it only queues an action for
	// the frontend's task window.
	sess.AppendLog(fmt.Sprintf("🪟 Abrir URL solicitada: %s", args.URL))
	sess.PushAction(session.Action{Type: "open_url", URL: args.URL})
	return map[string]any{"ok": true}
}

func toolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        toolSetPlan,
			Description: "Guarda un plan corto de 2 a 6 pasos para una tarea del usuario. Úsalo cuando detectes que el usuario pidió una acción/tarea.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"goal": map[string]any{
						"type":        "string",
						"description": "Objetivo en una frase.",
					},
					"steps": map[string]any{
						"type":        "array",
						"description": "Lista de pasos (2 a 6).",
						"items":       map[string]any{"type": "string"},
						"minItems":    minPlanSteps,
						"maxItems":    maxPlanSteps,
					},
					"needs_user": map[string]any{
						"type":        "array",
						"description": "Cosas que necesitas del usuario (si aplica).",
						"items":       map[string]any{"type": "string"},
					},
					"confirm_required": map[string]any{
						"type":        "boolean",
						"description": "True si requiere confirmación explícita (enviar/pagar/borrar/publicar/login).",
					},
				},
				"required": []string{"goal", "steps", "confirm_required"},
			},
		},
		{
			Name:        toolWebFetch,
			Description: "Descarga el contenido HTML de una URL pública y devuelve texto extraído. Úsalo si necesitas leer una página para responder o verificar información.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "URL http(s) a consultar.",
					},
					"max_chars": map[string]any{
						"type":        "integer",
						"description": "Máximo de caracteres de texto a devolver.",
						"default":     defaultFetchMaxChars,
					},
				},
				"required": []string{"url"},
			},
		},
		{
			Name:        toolOpenURL,
			Description: "Solicita abrir una URL en la ventana de tareas del frontend (modo copiloto). Úsala cuando el usuario diga 'abre X' o necesites mostrar una web.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "URL http(s) a abrir.",
					},
				},
				"required": []string{"url"},
			},
		},
	}
}
