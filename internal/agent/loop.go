// File: internal/agent/loop.go

// Package agent implements the orchestration loop that drives a
// chat-completions model through the server-executed tools, bounded to a
// fixed number of model round trips per turn.
package agent

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/innova-space-edu/mira-agentd/internal/session"
)

// State is the advisory label describing where the loop is in its turn; it
// is surfaced to the caller, never used for control flow.
type State string

const (
	StateIdle       State = "IDLE"
	StatePlanning   State = "PLANNING"
	StateExecuting  State = "EXECUTING"
	StateObserving  State = "OBSERVING"
	StateDone       State = "DONE"
	StateRecovering State = "RECOVERING"
)

// fallbackText is returned when the iteration budget runs out before the
// model produces a final answer.
const fallbackText = "No pude generar respuesta."

// TurnResult aggregates everything a finished turn produced.
type TurnResult struct {
	FinalText string
	State     State
	Plan      *session.Plan
	Logs      []string
	Actions   []session.Action
}

// Loop is the per-turn orchestration state machine.
type Loop struct {
	logger        *zap.Logger
	registry      *session.Registry
	client        ModelClient
	executor      *Executor
	maxIterations int
}

// NewLoop wires the loop to its collaborators.
func NewLoop(registry *session.Registry, client ModelClient, executor *Executor, maxIterations int, logger *zap.Logger) *Loop {
	return &Loop{
		logger:        logger.Named("agent_loop"),
		registry:      registry,
		client:        client,
		executor:      executor,
		maxIterations: maxIterations,
	}
}

// RunTurn processes one user turn: it clears the turn-scoped stores, appends
// the user text to history, and alternates model calls with sequential tool
// execution until the model answers in plain text or the iteration budget is
// exhausted. A model API failure is terminal for the turn; history up to the
// last successful append is preserved.
func (l *Loop) RunTurn(ctx context.Context, sessionID, userText string) (*TurnResult, error) {
	turnID := uuid.NewString()
	logger := l.logger.With(zap.String("session_id", sessionID), zap.String("turn_id", turnID))

	sess, release := l.registry.Acquire(sessionID)
	defer release()

	sess.BeginTurn()
	sess.AppendMessage("user", userText, l.registry.MaxMessages())

	wantAgent := isTaskLike(userText)
	state := StateIdle
	if wantAgent {
		state = StatePlanning
	}

	msgs := make([]ChatMessage, 0, len(sess.History())+1)
	msgs = append(msgs, ChatMessage{Role: "system", Content: systemPrompt})
	for _, m := range sess.History() {
		msgs = append(msgs, ChatMessage{Role: m.Role, Content: m.Content})
	}

	tools := l.executor.Definitions()
	finalText := ""

	for i := 0; i < l.maxIterations; i++ {
		resp, err := l.client.Complete(ctx, msgs, tools)
		if err != nil {
			logger.Error("Model call failed; turn aborted.", zap.Int("iteration", i), zap.Error(err))
			return nil, err
		}

		if len(resp.ToolCalls) > 0 {
			state = StateExecuting
			msgs = append(msgs, ChatMessage{
				Role:      "assistant",
				Content:   resp.Content,
				ToolCalls: resp.ToolCalls,
			})

			// Tool calls run strictly in the order the model returned them;
			// later calls may depend on earlier side effects.
			for _, tc := range resp.ToolCalls {
				result := l.executor.Execute(ctx, sess, tc)
				msgs = append(msgs, ChatMessage{
					Role:       "tool",
					Content:    result,
					ToolCallID: tc.ID,
					Name:       tc.Name,
				})
			}

			state = StateObserving
			continue
		}

		finalText = strings.TrimSpace(resp.Content)
		if finalText == "" {
			finalText = fallbackText
		}
		state = StateDone
		break
	}

	if finalText == "" {
		logger.Warn("Iteration budget exhausted without a final answer.",
			zap.Int("max_iterations", l.maxIterations))
		finalText = fallbackText
	}

	sess.AppendMessage("assistant", finalText, l.registry.MaxMessages())

	result := &TurnResult{
		FinalText: finalText,
		State:     finalState(sess.Plan() != nil, wantAgent, state),
		Plan:      sess.Plan(),
		Logs:      sess.Logs(),
		Actions:   sess.Actions(),
	}
	logger.Info("Turn complete.",
		zap.String("state", string(result.State)),
		zap.Int("logs", len(result.Logs)),
		zap.Int("actions", len(result.Actions)))
	return result, nil
}

// finalState picks the label reported to the caller: a stored plan wins,
// otherwise task-shaped input reports the loop's last state, and plain
// conversation stays IDLE.
func finalState(hasPlan, wantAgent bool, state State) State {
	if hasPlan {
		return StatePlanning
	}
	if wantAgent {
		return state
	}
	return StateIdle
}

// taskVerbs is the fixed lexical heuristic for task-shaped input.
var taskVerbs = []string{
	"abre", "abrir",
	"busca", "buscar",
	"rellena", "rellenar",
	"completa", "completar",
	"descarga", "descargar",
	"sube", "subir",
	"publica", "publicar",
	"crea", "crear",
	"pon", "reproduce", "reproducir",
}

func isTaskLike(text string) bool {
	t := strings.ToLower(text)
	for _, v := range taskVerbs {
		if strings.Contains(t, v) {
			return true
		}
	}
	return false
}
