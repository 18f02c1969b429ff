// Deep-research handling: authenticate, gate on the monthly quota, search,
// and fold the results into one context block.
//
// Quota is consumed exactly once per successful search and never for a
// failed one: the ledger commit runs only after the search provider has
// answered.
package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/lumenchat/request-gateway/internal/config"
	"github.com/lumenchat/request-gateway/internal/gwerr"
	"github.com/lumenchat/request-gateway/internal/monitoring"
	"github.com/lumenchat/request-gateway/internal/search"
)

// handleDeepResearch serves POST /deep-research.
func (g *Gateway) handleDeepResearch(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := requestIDFrom(r)

	userID, err := g.resolveCaller(r)
	if err != nil {
		g.finishResearch(w, r, researchOutcome{requestID: requestID, start: startTime, err: err})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)
	body, readErr := io.ReadAll(r.Body)
	if readErr != nil || !gjson.ValidBytes(body) {
		g.finishResearch(w, r, researchOutcome{requestID: requestID, start: startTime, userID: userID,
			err: gwerr.New(gwerr.KindInvalidRequest, "request body is not valid JSON")})
		return
	}
	query := strings.TrimSpace(gjson.GetBytes(body, "query").String())
	if query == "" {
		g.finishResearch(w, r, researchOutcome{requestID: requestID, start: startTime, userID: userID,
			err: gwerr.New(gwerr.KindInvalidRequest, "query is required")})
		return
	}

	remaining, err := g.ledger.CheckAndReserve(r.Context(), userID)
	if err != nil {
		if gwerr.IsKind(err, gwerr.KindQuotaExceeded) {
			g.metrics.RecordQuotaRejection()
		}
		g.finishResearch(w, r, researchOutcome{requestID: requestID, start: startTime, userID: userID, err: err})
		return
	}

	resp, err := g.searcher.Search(r.Context(), query)
	if err != nil {
		// Quota stays unconsumed: the commit below is skipped.
		g.finishResearch(w, r, researchOutcome{requestID: requestID, start: startTime, userID: userID, err: err})
		return
	}

	if err := g.ledger.Commit(r.Context(), userID); err != nil {
		// A concurrent request may have taken the last slot between check
		// and commit; the conditional update reports that as exhaustion.
		if gwerr.IsKind(err, gwerr.KindQuotaExceeded) {
			g.metrics.RecordQuotaRejection()
		}
		g.finishResearch(w, r, researchOutcome{requestID: requestID, start: startTime, userID: userID, err: err})
		return
	}

	g.metrics.RecordResearch()
	log.Debug().
		Str("request_id", requestID).
		Str("user_id", userID).
		Int("results", len(resp.Results)).
		Int("remaining", remaining-1).
		Msg("research completed")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"context": search.FormatContext(resp)})
	g.finishResearch(w, r, researchOutcome{requestID: requestID, start: startTime, userID: userID, status: http.StatusOK})
}

// resolveCaller extracts the bearer token and resolves it against the
// identity collaborator.
func (g *Gateway) resolveCaller(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", gwerr.New(gwerr.KindUnauthorized, "missing bearer token")
	}
	return g.identity.ResolveToken(r.Context(), strings.TrimPrefix(auth, "Bearer "))
}

// researchOutcome carries the result of one research request into telemetry.
type researchOutcome struct {
	requestID string
	start     time.Time
	userID    string
	status    int
	err       error
}

func (g *Gateway) finishResearch(w http.ResponseWriter, r *http.Request, out researchOutcome) {
	if out.err != nil {
		out.status = gwerr.HTTPStatus(out.err)
		g.writeError(w, r, out.err)
	}

	success := out.err == nil
	g.metrics.RecordRequest(success)

	event := &monitoring.RequestEvent{
		RequestID:  out.requestID,
		Timestamp:  out.start,
		Method:     r.Method,
		Path:       r.URL.Path,
		ClientIP:   r.RemoteAddr,
		UserID:     out.userID,
		StatusCode: out.status,
		Success:    success,
		LatencyMs:  time.Since(out.start).Milliseconds(),
	}
	if out.err != nil {
		event.ErrorKind = string(gwerr.KindOf(out.err))
		event.Error = out.err.Error()
	}
	g.tracker.RecordRequest(event)
}
