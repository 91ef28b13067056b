package voicelane

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ToolCallBridge resolves model-initiated tool calls against the session's
// webhook bindings and feeds the results back into the conversation. It is
// asynchronous with respect to the event loop: the dispatch runs in its own
// goroutine so inbound protocol events, including a transport failure, keep
// flowing while a webhook is in flight.
type ToolCallBridge struct {
	dispatcher   *Dispatcher
	logger       *Logger
	onTranscript func(TranscriptEntry)
	onState      func(State)
}

// HandleFunctionCall processes one completed tool call. It never blocks the
// caller beyond argument parsing and map lookup.
func (b *ToolCallBridge) HandleFunctionCall(ctx context.Context, s *Session, ev FunctionCallDone) {
	args := parseToolArguments(ev.Arguments, b.logger)

	url, ok := s.ToolWebhookURL(ev.Name)
	if !ok {
		// Misconfiguration: tell the model without touching the network.
		b.logger.Warn("tool_unconfigured", map[string]any{"tool": ev.Name})
		b.transcript(fmt.Sprintf("Tool %q: no webhook configured", ev.Name))
		_ = b.sendResult(ctx, s, ev.CallID, map[string]any{
			"success": false,
			"error":   (&ToolResolutionError{Tool: ev.Name}).Error(),
		})
		b.state(StateListening)
		return
	}

	b.state(StateAwaitingToolResult)
	go b.dispatchAndRespond(ctx, s, ev, url, args)
}

// dispatchAndRespond performs the webhook invocation and reports the outcome
// to both the model and the transcript. Runs off the event loop goroutine.
func (b *ToolCallBridge) dispatchAndRespond(ctx context.Context, s *Session, ev FunctionCallDone, url string, args map[string]any) {
	b.transcript(fmt.Sprintf("Calling tool %q…", ev.Name))

	res := b.dispatcher.Invoke(ctx, url, args)
	if res.Success {
		b.transcript(fmt.Sprintf("Tool %q succeeded (HTTP %d)", ev.Name, res.Status))
		_ = b.sendResult(ctx, s, ev.CallID, map[string]any{
			"success": true,
			"message": "Webhook delivered successfully",
		})
	} else {
		reason := res.Error
		if reason == "" {
			reason = fmt.Sprintf("HTTP %d", res.Status)
		}
		b.logger.Warn("tool_dispatch_failed", map[string]any{"tool": ev.Name, "reason": reason})
		b.transcript(fmt.Sprintf("Tool %q failed: %s", ev.Name, reason))
		// Structured failure so the model can inform the caller.
		_ = b.sendResult(ctx, s, ev.CallID, map[string]any{
			"success": false,
			"error":   reason,
		})
	}

	// Ask the model to proceed regardless of the outcome.
	if err := s.send(ctx, newResponseCreate()); err != nil {
		b.logger.Warn("tool_continuation_failed", map[string]any{"tool": ev.Name, "err": err})
	}
	b.state(StateListening)
}

func (b *ToolCallBridge) state(st State) {
	if b.onState != nil {
		b.onState(st)
	}
}

func (b *ToolCallBridge) sendResult(ctx context.Context, s *Session, callID string, result map[string]any) error {
	err := s.send(ctx, newFunctionCallOutput(callID, result))
	if err != nil {
		b.logger.Warn("tool_result_send_failed", map[string]any{"call_id": callID, "err": err})
	}
	return err
}

func (b *ToolCallBridge) transcript(text string) {
	if b.onTranscript != nil {
		b.onTranscript(TranscriptEntry{Role: RoleTool, Text: text, At: time.Now()})
	}
}

// parseToolArguments decodes the model-supplied argument JSON. Malformed
// arguments degrade to an empty object rather than aborting the session.
func parseToolArguments(raw string, logger *Logger) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		logger.Warn("tool_arguments_malformed", map[string]any{"err": err})
		return map[string]any{}
	}
	return args
}
