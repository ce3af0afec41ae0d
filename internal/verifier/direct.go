package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// livePost is the subset of an external API's response this verifier
// needs. The author handle is read from either "userName" or
// "username"; metrics are read only from snake_case "public_metrics"
// fields and followers only from "author.followers". The post itself is
// taken from a "tweets" array or a "data" object (see livePostEnvelope);
// a bare top-level post object is not recognized.
type livePost struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
	Author    struct {
		UserName  string `json:"userName"`
		Username  string `json:"username"`
		Followers int64  `json:"followers"`
	} `json:"author"`
	PublicMetrics struct {
		LikeCount    int64 `json:"like_count"`
		RetweetCount int64 `json:"retweet_count"`
		ReplyCount   int64 `json:"reply_count"`
	} `json:"public_metrics"`
}

type livePostEnvelope struct {
	Tweets []livePost `json:"tweets"`
	Data   *livePost  `json:"data"`
}

// HTTPClient is the minimal surface DirectBackend needs; *http.Client
// satisfies it, tests can substitute a fake.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DirectBackend verifies a post by calling the external post-verification
// API directly, synchronously, with the configured timeout.
type DirectBackend struct {
	client  HTTPClient
	baseURL string
	apiKey  string
	timeout time.Duration
}

// NewDirectBackend constructs a DirectBackend.
func NewDirectBackend(client HTTPClient, baseURL, apiKey string, timeout time.Duration) *DirectBackend {
	return &DirectBackend{client: client, baseURL: baseURL, apiKey: apiKey, timeout: timeout}
}

// Verify implements Verifier.
func (d *DirectBackend) Verify(ctx context.Context, post Post) (bool, *VerificationError) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	live, err := d.fetch(ctx, post.PostID)
	if err != nil {
		return false, &VerificationError{Code: ErrAPIError, Message: err.Error()}
	}
	if live == nil {
		return false, &VerificationError{Code: ErrPostNotFound, Message: "post not found or inaccessible"}
	}

	if !textsMatch(post.Content, live.Text) {
		return false, &VerificationError{
			Code:    ErrTextMismatch,
			Message: "content does not match live post text",
			Details: map[string]any{"miner_len": len(post.Content), "live_len": len(live.Text)},
		}
	}

	minerAuthor := normalizeAuthor(post.Author)
	liveAuthorRaw := live.Author.UserName
	if liveAuthorRaw == "" {
		liveAuthorRaw = live.Author.Username
	}
	liveAuthor := normalizeAuthor(liveAuthorRaw)
	if minerAuthor != liveAuthor {
		return false, &VerificationError{
			Code:    ErrAuthorMismatch,
			Message: "author does not match",
			Details: map[string]any{"miner": minerAuthor, "live": liveAuthor},
		}
	}

	if post.Date == 0 {
		return false, &VerificationError{Code: ErrTimestampMissing, Message: "timestamp is missing"}
	}
	if live.CreatedAt == "" {
		return false, &VerificationError{Code: ErrMissingCreatedAt, Message: "live post missing created_at"}
	}
	liveTS, err := parseTimestamp(live.CreatedAt)
	if err != nil {
		return false, &VerificationError{Code: ErrMissingCreatedAt, Message: "failed to parse live created_at"}
	}
	if post.Date != liveTS {
		return false, &VerificationError{
			Code:    ErrTimestampMismatch,
			Message: "timestamp must match exactly",
			Details: map[string]any{"miner": post.Date, "live": liveTS},
		}
	}

	if metricInflated(post.Likes, live.PublicMetrics.LikeCount) {
		return false, inflationError(ErrMetricInflationLikes, "likes", post.Likes, live.PublicMetrics.LikeCount)
	}
	if metricInflated(post.Retweets, live.PublicMetrics.RetweetCount) {
		return false, inflationError(ErrMetricInflationRetweets, "retweets", post.Retweets, live.PublicMetrics.RetweetCount)
	}
	if metricInflated(post.Replies, live.PublicMetrics.ReplyCount) {
		return false, inflationError(ErrMetricInflationReplies, "replies", post.Replies, live.PublicMetrics.ReplyCount)
	}
	if metricInflated(post.Followers, live.Author.Followers) {
		return false, inflationError(ErrMetricInflationFollowers, "followers", post.Followers, live.Author.Followers)
	}

	return true, nil
}

func inflationError(code ErrorCode, field string, miner, live int64) *VerificationError {
	return &VerificationError{
		Code:    code,
		Message: field + " overstated beyond tolerance",
		Details: map[string]any{"miner": miner, "live": live, "tolerance": metricTolerance(live)},
	}
}

func (d *DirectBackend) fetch(ctx context.Context, postID string) (*livePost, error) {
	url := fmt.Sprintf("%s?tweet_ids=%s", d.baseURL, postID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if d.apiKey != "" {
		req.Header.Set("X-API-Key", d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("external verifier API returned status %d", resp.StatusCode)
	}

	var envelope livePostEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode external verifier response: %w", err)
	}

	if len(envelope.Tweets) > 0 {
		return &envelope.Tweets[0], nil
	}
	if envelope.Data != nil {
		return envelope.Data, nil
	}
	return nil, nil
}

func parseTimestamp(s string) (int64, error) {
	for _, layout := range []string{time.RFC3339, time.RubyDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized timestamp format: %q", s)
}
