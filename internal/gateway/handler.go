// HTTP request handling for the completion router.
//
// DESIGN: Request flow:
//   - handleChatCompletion(): validate, resolve provider, assemble prompt
//   - dispatchUpstream():     single streaming POST to the provider
//   - relayStream():          incremental byte relay with flushing
//
// No retries: provider errors are typically deterministic (bad model, bad
// auth, malformed payload), and a stream that has started cannot be resumed.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/lumenchat/request-gateway/internal/config"
	"github.com/lumenchat/request-gateway/internal/gwerr"
	"github.com/lumenchat/request-gateway/internal/monitoring"
	"github.com/lumenchat/request-gateway/internal/prompt"
	"github.com/lumenchat/request-gateway/internal/providers"
	"github.com/lumenchat/request-gateway/internal/tokencount"
	"github.com/lumenchat/request-gateway/internal/utils"
)

// handleChatCompletion routes one chat request to its provider and relays
// the response stream.
func (g *Gateway) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := requestIDFrom(r)

	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		g.finishChat(w, r, chatOutcome{requestID: requestID, start: startTime,
			err: gwerr.New(gwerr.KindInvalidRequest, "failed to read request body")})
		return
	}
	if !gjson.ValidBytes(body) {
		g.finishChat(w, r, chatOutcome{requestID: requestID, start: startTime,
			err: gwerr.New(gwerr.KindInvalidRequest, "request body is not valid JSON")})
		return
	}

	modelID := gjson.GetBytes(body, "model").String()
	provider, err := g.registry.Resolve(modelID)
	if err != nil {
		g.finishChat(w, r, chatOutcome{requestID: requestID, start: startTime, model: modelID, err: err})
		return
	}

	forwardBody, err := prompt.Assemble(body, g.config.Chat.SystemPrompt)
	if err != nil {
		g.finishChat(w, r, chatOutcome{requestID: requestID, start: startTime, model: modelID,
			err: gwerr.New(gwerr.KindInternal, "failed to assemble request")})
		return
	}

	// Provider-pinned temperature wins over whatever the caller sent.
	if t := provider.ForcedTemperature(); t != nil {
		forwardBody, err = sjson.SetBytes(forwardBody, "temperature", *t)
		if err != nil {
			g.finishChat(w, r, chatOutcome{requestID: requestID, start: startTime, model: modelID,
				err: gwerr.New(gwerr.KindInternal, "failed to set temperature")})
			return
		}
	}

	streamed := gjson.GetBytes(forwardBody, "stream").Bool()
	promptTokens := tokencount.EstimateMessages(forwardBody)

	log.Debug().
		Str("request_id", requestID).
		Str("provider", provider.Name()).
		Str("model", modelID).
		Bool("stream", streamed).
		Int("prompt_tokens", promptTokens).
		Msg("dispatching completion")

	resp, err := g.dispatchUpstream(r.Context(), provider, forwardBody)
	if err != nil {
		g.finishChat(w, r, chatOutcome{requestID: requestID, start: startTime,
			provider: provider.Name(), model: modelID, streamed: streamed,
			promptTokens: promptTokens, err: err})
		return
	}
	defer func() { _ = resp.Body.Close() }()

	g.relayStream(w, resp)
	g.metrics.RecordCompletion(streamed, promptTokens)
	g.finishChat(w, r, chatOutcome{requestID: requestID, start: startTime,
		provider: provider.Name(), model: modelID, streamed: streamed,
		promptTokens: promptTokens, status: http.StatusOK, relayed: true})
}

// dispatchUpstream issues the single streaming request to the provider's
// completion endpoint. The caller's context is used directly so a client
// disconnect cancels the upstream call.
func (g *Gateway) dispatchUpstream(ctx context.Context, p *providers.Provider, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.CompletionsURL(), bytes.NewReader(body))
	if err != nil {
		return nil, gwerr.New(gwerr.KindInternal, "build upstream request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", p.AuthHeader())
	for k, v := range p.ExtraHeaders() {
		req.Header.Set(k, v)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, gwerr.New(gwerr.KindUpstreamTimeout, "upstream request timed out")
		}
		return nil, gwerr.New(gwerr.KindUpstreamError, "upstream request failed: %v", err)
	}

	// Read error bodies in full so the caller sees the provider's reason.
	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		errBody, _ := io.ReadAll(resp.Body)
		log.Error().
			Int("status", resp.StatusCode).
			Str("provider", p.Name()).
			Str("response", utils.Truncate(string(errBody), config.MaxErrorBodyLogLen)).
			Msg("upstream error response")
		return nil, gwerr.Upstream(resp.StatusCode, string(errBody))
	}
	return resp, nil
}

// relayStream forwards the upstream byte stream to the caller verbatim,
// flushing as chunks arrive. The response is never buffered in full:
// forward progress downstream tracks forward progress upstream, and
// upstream termination terminates the downstream stream.
func (g *Gateway) relayStream(w http.ResponseWriter, resp *http.Response) {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "text/event-stream")
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(resp.StatusCode)

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Warn().Msg("streaming not supported, falling back to buffered")
		_, _ = io.Copy(w, resp.Body)
		return
	}

	buf := make([]byte, config.DefaultBufferSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				// Client gone; the request context cancels the upstream call.
				log.Debug().Err(writeErr).Msg("client disconnected")
				return
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				log.Debug().Err(err).Msg("error reading upstream stream")
			}
			return
		}
	}
}

// chatOutcome carries the result of one completion request into telemetry.
type chatOutcome struct {
	requestID    string
	start        time.Time
	provider     string
	model        string
	streamed     bool
	promptTokens int
	status       int
	relayed      bool
	err          error
}

// finishChat writes the error response (unless the relay already started)
// and records telemetry for the request.
func (g *Gateway) finishChat(w http.ResponseWriter, r *http.Request, out chatOutcome) {
	if out.err != nil && !out.relayed {
		out.status = gwerr.HTTPStatus(out.err)
		g.writeError(w, r, out.err)
	}

	success := out.err == nil
	g.metrics.RecordRequest(success)

	event := &monitoring.RequestEvent{
		RequestID:    out.requestID,
		Timestamp:    out.start,
		Method:       r.Method,
		Path:         r.URL.Path,
		ClientIP:     r.RemoteAddr,
		Provider:     out.provider,
		Model:        out.model,
		StatusCode:   out.status,
		Streamed:     out.streamed,
		PromptTokens: out.promptTokens,
		Success:      success,
		LatencyMs:    time.Since(out.start).Milliseconds(),
	}
	if out.err != nil {
		event.ErrorKind = string(gwerr.KindOf(out.err))
		event.Error = out.err.Error()
	}
	g.tracker.RecordRequest(event)
}

// isTimeout classifies transport errors that should surface as
// upstream_timeout rather than a generic upstream failure.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
