package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hetu-project/validator-coordinator/internal/core"
	"github.com/hetu-project/validator-coordinator/internal/coreerr"
)

// setRateLimitHeaders attaches the X-RateLimit-* headers spec §6
// requires on a 429 response, when payload is the shape core.Intake
// attaches to a rate_limit error.
func setRateLimitHeaders(w http.ResponseWriter, payload any) {
	info, ok := payload.(core.RateLimitExceeded)
	if !ok {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.RateLimit.MaxSubmissions))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.RateLimit.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatFloat(info.EstimatedSecondsUntilReset, 'f', -1, 64))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy"})
}

func (s *Server) handleDeprecated(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusGone, errorResponse{
		Error:   "deprecated",
		Message: "this API version has been retired; use /v2",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	block := s.Coordinator.Clock.CurrentBlock(r.Context())
	wStart := core.WindowStart(block, s.Coordinator.BlocksPerWindow)
	writeJSON(w, http.StatusOK, statusResponse{
		CurrentBlock:     block,
		WindowStartBlock: wStart,
		WindowEndBlock:   core.WindowEnd(wStart, s.Coordinator.BlocksPerWindow),
		BlocksPerWindow:  s.Coordinator.BlocksPerWindow,
		CurrentWindow:    wStart / s.Coordinator.BlocksPerWindow,
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.Log, coreerr.Wrap(coreerr.KindClientInput, "malformed JSON body", err))
		return
	}

	if err := validateSubmitRequest(req); err != nil {
		writeError(w, s.Log, err)
		return
	}

	caller := principalAddress(r.Context())
	if req.MinerIdentity != "" && req.MinerIdentity != caller {
		writeError(w, s.Log, coreerr.New(coreerr.KindAuthz, "miner_identity does not match authenticated principal"))
		return
	}

	result, err := s.Coordinator.Intake.Submit(r.Context(), caller, core.SubmissionInput{
		PostID:     req.PostID,
		Content:    req.Content,
		Date:       req.Date,
		Author:     req.Author,
		Likes:      req.Likes,
		Retweets:   req.Retweets,
		Replies:    req.Replies,
		Followers:  req.Followers,
		AccountAge: req.AccountAge,
		Tokens:     req.Tokens,
		Sentiment:  req.Sentiment,
		Score:      req.Score,
	})
	if err != nil {
		if ce, ok := coreerr.As(err); ok && ce.Kind == coreerr.KindRateLimit {
			setRateLimitHeaders(w, ce.Payload)
		}
		writeError(w, s.Log, err)
		return
	}

	var xErrJSON json.RawMessage
	if result.XValidationError != nil {
		if b, err := json.Marshal(result.XValidationError); err == nil {
			xErrJSON = b
		}
	}

	writeJSON(w, http.StatusOK, submitResponse{
		Status:                string(result.Status),
		SelectedForValidation: result.SelectedForValidation,
		ValidationID:          result.ValidationID,
		XValidationError:      xErrJSON,
		CurrentBlock:          result.Window.CurrentBlock,
		WindowStartBlock:      result.Window.WindowStartBlock,
		WindowEndBlock:        result.Window.WindowEndBlock,
		NextWindowStartBlock:  result.Window.NextWindowStartBlock,
		BlocksPerWindow:       result.Window.BlocksPerWindow,
		CurrentWindow:         result.Window.CurrentWindow,
		RateLimit: rateLimitJSON{
			CurrentCount:   result.RateLimit.CurrentCount,
			MaxSubmissions: result.RateLimit.MaxSubmissions,
			Remaining:      result.RateLimit.Remaining,
		},
	})
}

// validateSubmitRequest enforces the schema-level invariants of spec
// §3's Submission entity — the httpapi layer's responsibility per
// SPEC_FULL §4.4, since core.Intake assumes a schema-validated body.
func validateSubmitRequest(req submitRequest) error {
	if req.PostID == "" || req.Content == "" || req.Author == "" {
		return coreerr.New(coreerr.KindClientInput, "post_id, content, and author are required")
	}
	if req.Sentiment < -1 || req.Sentiment > 1 {
		return coreerr.New(coreerr.KindClientInput, "sentiment must be in [-1,1]")
	}
	if req.Score < 0 || req.Score > 1 {
		return coreerr.New(coreerr.KindClientInput, "score must be in [0,1]")
	}
	if len(req.Tokens) == 0 {
		return coreerr.New(coreerr.KindClientInput, "tokens mapping must not be empty")
	}
	hasPositive := false
	for _, v := range req.Tokens {
		if v < 0 || v > 1 {
			return coreerr.New(coreerr.KindClientInput, "token relevance values must be in [0,1]")
		}
		if v > 0 {
			hasPositive = true
		}
	}
	if !hasPositive {
		return coreerr.New(coreerr.KindClientInput, "tokens mapping must contain at least one strictly positive entry")
	}
	return nil
}

func (s *Server) handleGetValidation(w http.ResponseWriter, r *http.Request) {
	validator := principalAddress(r.Context())

	tasks, err := s.Coordinator.Dispatcher.ClaimTasks(r.Context(), validator)
	if err != nil {
		writeError(w, s.Log, err)
		return
	}

	payloads := make([]validationPayload, 0, len(tasks))
	for _, t := range tasks {
		sub := t.Submission
		payloads = append(payloads, validationPayload{
			ValidationID:  t.ValidationID,
			MinerIdentity: t.MinerIdentity,
			Post: map[string]any{
				"post_id":     sub.PostID,
				"content":     sub.Content,
				"date":        sub.Date,
				"author":      sub.Author,
				"likes":       sub.Likes,
				"retweets":    sub.Retweets,
				"replies":     sub.Replies,
				"followers":   sub.Followers,
				"account_age": sub.AccountAge,
				"tokens":      sub.Tokens,
				"sentiment":   sub.Sentiment,
				"score":       sub.Score,
				"post_url":    sub.PostURL,
			},
			SelectedAt: t.SelectedAt,
		})
	}

	writeJSON(w, http.StatusOK, validationResponse{
		Available: len(payloads) > 0,
		Payloads:  payloads,
		Count:     len(payloads),
	})
}

func (s *Server) handlePostValidationResult(w http.ResponseWriter, r *http.Request) {
	var req validationResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.Log, coreerr.Wrap(coreerr.KindClientInput, "malformed JSON body", err))
		return
	}

	validator := principalAddress(r.Context())

	inputs := make([]core.ResultInput, 0, len(req.Results))
	for _, item := range req.Results {
		inputs = append(inputs, core.ResultInput{
			ValidationID:  item.ValidationID,
			MinerIdentity: item.MinerIdentity,
			Success:       item.Success,
			FailureReason: item.FailureReason,
		})
	}

	successful, failed, _ := s.Coordinator.Recorder.RecordResults(r.Context(), validator, inputs)

	writeJSON(w, http.StatusOK, validationResultResponse{
		Status:     "ok",
		Successful: successful,
		Failed:     failed,
	})
}

func (s *Server) handleGetScores(w http.ResponseWriter, r *http.Request) {
	scores, err := s.Coordinator.Finalizer.GetScores(r.Context())
	if err != nil {
		writeError(w, s.Log, err)
		return
	}

	writeJSON(w, http.StatusOK, scoresResponse{
		Scores:            scores.ByMiner,
		Count:             scores.Count,
		BlocksPerWindow:   scores.BlocksPerWindow,
		BlockWindowStart:  scores.WindowStartBlock,
		BlockWindowEnd:    scores.WindowEndBlock,
		CurrentBlock:      scores.CurrentBlock,
		CalculatedAt:      scores.CalculatedAt,
		CalculatedAtBlock: scores.CalculatedAtBlock,
		WindowType:        "previous",
	})
}
