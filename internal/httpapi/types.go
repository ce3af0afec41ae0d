package httpapi

import "encoding/json"

// submitRequest is the wire shape of POST /v2/submit's body, matching
// the Submission invariants of spec §3 exactly.
type submitRequest struct {
	MinerIdentity string             `json:"miner_identity"`
	PostID        string             `json:"post_id"`
	Content       string             `json:"content"`
	Date          int64              `json:"date"`
	Author        string             `json:"author"`
	Likes         int64              `json:"likes"`
	Retweets      int64              `json:"retweets"`
	Replies       int64              `json:"replies"`
	Followers     int64              `json:"followers"`
	AccountAge    int64              `json:"account_age"`
	Tokens        map[string]float64 `json:"tokens"`
	Sentiment     float64            `json:"sentiment"`
	Score         float64            `json:"score"`
}

type windowMetadataJSON struct {
	CurrentBlock         int64 `json:"current_block"`
	WindowStartBlock     int64 `json:"window_start_block"`
	WindowEndBlock       int64 `json:"window_end_block"`
	NextWindowStartBlock int64 `json:"next_window_start_block"`
	BlocksPerWindow      int64 `json:"blocks_per_window"`
	CurrentWindow        int64 `json:"current_window"`
}

type rateLimitJSON struct {
	CurrentCount   int `json:"current_count"`
	MaxSubmissions int `json:"max_submissions"`
	Remaining      int `json:"remaining"`
}

type submitResponse struct {
	Status                string          `json:"status"`
	SelectedForValidation  bool            `json:"selected_for_validation,omitempty"`
	ValidationID           string          `json:"validation_id,omitempty"`
	XValidationError       json.RawMessage `json:"x_validation_error,omitempty"`
	CurrentBlock           int64           `json:"current_block"`
	WindowStartBlock       int64           `json:"window_start_block"`
	WindowEndBlock         int64           `json:"window_end_block"`
	NextWindowStartBlock   int64           `json:"next_window_start_block"`
	BlocksPerWindow        int64           `json:"blocks_per_window"`
	CurrentWindow          int64           `json:"current_window"`
	RateLimit              rateLimitJSON   `json:"rate_limit"`
}

type validationPayload struct {
	ValidationID  string         `json:"validation_id"`
	MinerIdentity string         `json:"miner_identity"`
	Post          map[string]any `json:"post"`
	SelectedAt    int64          `json:"selected_at"`
}

type validationResponse struct {
	Available bool                `json:"available"`
	Payloads  []validationPayload `json:"payloads"`
	Count     int                 `json:"count"`
}

type validationResultItem struct {
	ValidatorIdentity string          `json:"validator_identity"`
	ValidationID      string          `json:"validation_id"`
	MinerIdentity     string          `json:"miner_identity"`
	Success           bool            `json:"success"`
	FailureReason     json.RawMessage `json:"failure_reason,omitempty"`
}

type validationResultRequest struct {
	ValidatorIdentity string                 `json:"validator_identity"`
	Results           []validationResultItem `json:"results"`
}

type validationResultResponse struct {
	Status     string `json:"status"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
}

type scoresResponse struct {
	Scores            map[string]float64 `json:"scores"`
	Count             int                 `json:"count"`
	BlocksPerWindow   int64               `json:"blocks_per_window"`
	BlockWindowStart  int64               `json:"block_window_start"`
	BlockWindowEnd    int64               `json:"block_window_end"`
	CurrentBlock      int64               `json:"current_block"`
	CalculatedAt      int64               `json:"calculated_at"`
	CalculatedAtBlock int64               `json:"calculated_at_block"`
	WindowType        string              `json:"window_type"`
}

type statusResponse struct {
	CurrentBlock     int64 `json:"current_block"`
	WindowStartBlock int64 `json:"window_start_block"`
	WindowEndBlock   int64 `json:"window_end_block"`
	BlocksPerWindow  int64 `json:"blocks_per_window"`
	CurrentWindow    int64 `json:"current_window"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// errorResponse is the body shape for every non-2xx response.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Payload any    `json:"payload,omitempty"`
}
