package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schemaFS embed.FS

// Postgres is the production Store, backed by database/sql over
// pgx/v5's stdlib driver. Grounded on original_source/database.py's
// DatabaseManager: same table shapes, same exactly-once dispatch via
// SELECT ... FOR UPDATE SKIP LOCKED, same ON CONFLICT DO NOTHING
// idempotent upserts.
type Postgres struct {
	db  *sql.DB
	log *logrus.Entry
}

// Open connects to databaseURL and configures the pool per spec §5.
func Open(ctx context.Context, databaseURL string, poolMin, poolMax int, log *logrus.Entry) (*Postgres, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(poolMax)
	db.SetMaxIdleConns(poolMin)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{db: db, log: log}, nil
}

// Migrate applies the embedded schema. Idempotent: every statement is
// CREATE ... IF NOT EXISTS.
func (p *Postgres) Migrate(ctx context.Context) error {
	raw, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, string(raw))
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (p *Postgres) Close() error { return p.db.Close() }

func tokensToJSON(tokens map[string]float64) (string, error) {
	if tokens == nil {
		tokens = map[string]float64{}
	}
	b, err := json.Marshal(tokens)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func tokensFromJSON(raw string) (map[string]float64, error) {
	tokens := map[string]float64{}
	if raw == "" {
		return tokens, nil
	}
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

func (p *Postgres) GetSubmission(ctx context.Context, minerIdentity, postID string) (*Submission, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT miner_identity, post_id, content, date, author, account_age,
		       retweets, likes, replies, followers, tokens_json, sentiment,
		       score, accepted_at, accepted_block, post_url,
		       selected_for_validation, validation_id, x_validated,
		       x_validation_result, x_validated_at, x_validation_error, window_id
		FROM submissions WHERE miner_identity = $1 AND post_id = $2`,
		minerIdentity, postID)

	s, err := scanSubmission(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

type scanner func(dest ...any) error

func scanSubmission(scan scanner) (*Submission, error) {
	var s Submission
	var tokensJSON string
	var postURL sql.NullString
	var validationID sql.NullString
	var xResult sql.NullBool
	var xValidatedAt sql.NullInt64
	var xValidationError sql.NullString
	var windowID sql.NullInt64

	err := scan(
		&s.MinerIdentity, &s.PostID, &s.Content, &s.Date, &s.Author, &s.AccountAge,
		&s.Retweets, &s.Likes, &s.Replies, &s.Followers, &tokensJSON, &s.Sentiment,
		&s.Score, &s.AcceptedAt, &s.AcceptedBlock, &postURL,
		&s.SelectedForValidation, &validationID, &s.XValidated,
		&xResult, &xValidatedAt, &xValidationError, &windowID,
	)
	if err != nil {
		return nil, err
	}

	s.Tokens, err = tokensFromJSON(tokensJSON)
	if err != nil {
		return nil, err
	}
	if postURL.Valid {
		s.PostURL = postURL.String
	}
	if validationID.Valid {
		v := validationID.String
		s.ValidationID = &v
	}
	if xResult.Valid {
		v := xResult.Bool
		s.XValidationResult = &v
	}
	if xValidatedAt.Valid {
		v := xValidatedAt.Int64
		s.XValidatedAt = &v
	}
	if xValidationError.Valid {
		s.XValidationError = json.RawMessage(xValidationError.String)
	}
	if windowID.Valid {
		v := windowID.Int64
		s.WindowID = &v
	}
	return &s, nil
}

func (p *Postgres) CountSubmissionsInWindow(ctx context.Context, minerIdentity string, windowStart int64) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM submissions
		WHERE miner_identity = $1 AND accepted_block >= $2`,
		minerIdentity, windowStart).Scan(&count)
	return count, err
}

func (p *Postgres) InsertSubmission(ctx context.Context, s *Submission) error {
	tokensJSON, err := tokensToJSON(s.Tokens)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO submissions (
			miner_identity, post_id, content, date, author, account_age,
			retweets, likes, replies, followers, tokens_json, sentiment,
			score, accepted_at, accepted_block, post_url
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (miner_identity, post_id) DO NOTHING`,
		s.MinerIdentity, s.PostID, s.Content, s.Date, s.Author, s.AccountAge,
		s.Retweets, s.Likes, s.Replies, s.Followers, tokensJSON, s.Sentiment,
		s.Score, s.AcceptedAt, s.AcceptedBlock, nullableString(s.PostURL))
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	existing, err := p.GetSubmission(ctx, s.MinerIdentity, s.PostID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("insert submission: row vanished after insert")
	}
	if existing.AcceptedAt != s.AcceptedAt {
		return ErrDuplicate
	}
	return nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (p *Postgres) MarkVerificationFailed(ctx context.Context, minerIdentity, postID string, validationError []byte) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE submissions
		SET x_validated = TRUE, x_validation_result = FALSE,
		    x_validated_at = $3, x_validation_error = $4
		WHERE miner_identity = $1 AND post_id = $2`,
		minerIdentity, postID, time.Now().Unix(), string(validationError))
	return err
}

func (p *Postgres) TryPromote(ctx context.Context, minerIdentity, postID, validationID string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE submissions
		SET selected_for_validation = TRUE, validation_id = $3,
		    x_validated = TRUE, x_validation_result = TRUE, x_validated_at = $4
		WHERE miner_identity = $1 AND post_id = $2 AND selected_for_validation = FALSE`,
		minerIdentity, postID, validationID, time.Now().Unix())
	if err != nil {
		return false, fmt.Errorf("promote submission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClaimTasks implements exactly-once dispatch: within a transaction it
// locks candidate rows with FOR UPDATE SKIP LOCKED (so concurrent
// dispatchers never see each other's in-flight rows), then inserts a
// validator_assignments row per candidate. On a conflicting
// validation_id the existing row is taken over only when its lease has
// gone stale (uncompleted and assigned at or before now-leaseTTLSeconds);
// otherwise the insert affects no row and the candidate is skipped, which
// guards against a second dispatcher racing the same validation_id (the
// assignments table, not the row lock, is the source of truth for
// "already dispatched").
func (p *Postgres) ClaimTasks(ctx context.Context, validatorIdentity string, limit int, leaseTTLSeconds int64) ([]ValidationCandidate, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	var staleBefore int64 = math.MinInt64
	if leaseTTLSeconds > 0 {
		staleBefore = now - leaseTTLSeconds
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT s.miner_identity, s.post_id, s.content, s.date, s.author,
		       s.account_age, s.retweets, s.likes, s.replies, s.followers,
		       s.tokens_json, s.sentiment, s.score, s.accepted_at,
		       s.accepted_block, s.post_url, s.validation_id
		FROM submissions s
		WHERE s.selected_for_validation = TRUE
		  AND NOT EXISTS (
		      SELECT 1 FROM validator_assignments a
		      WHERE a.validation_id = s.validation_id
		        AND (a.completed_at IS NOT NULL OR a.assigned_at > $1)
		  )
		ORDER BY s.accepted_at ASC
		LIMIT $2
		FOR UPDATE OF s SKIP LOCKED`,
		staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}

	type rawCandidate struct {
		sub          Submission
		tokensJSON   string
		postURL      sql.NullString
		validationID sql.NullString
	}
	var raws []rawCandidate
	for rows.Next() {
		var rc rawCandidate
		if err := rows.Scan(
			&rc.sub.MinerIdentity, &rc.sub.PostID, &rc.sub.Content, &rc.sub.Date,
			&rc.sub.Author, &rc.sub.AccountAge, &rc.sub.Retweets, &rc.sub.Likes,
			&rc.sub.Replies, &rc.sub.Followers, &rc.tokensJSON, &rc.sub.Sentiment,
			&rc.sub.Score, &rc.sub.AcceptedAt, &rc.sub.AcceptedBlock, &rc.postURL,
			&rc.validationID,
		); err != nil {
			rows.Close()
			return nil, err
		}
		raws = append(raws, rc)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var claimed []ValidationCandidate
	for _, rc := range raws {
		if !rc.validationID.Valid {
			continue
		}
		validationID := rc.validationID.String

		res, err := tx.ExecContext(ctx, `
			INSERT INTO validator_assignments (validation_id, validator_identity, assigned_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (validation_id) DO UPDATE
			    SET validator_identity = EXCLUDED.validator_identity,
			        assigned_at = EXCLUDED.assigned_at
			    WHERE validator_assignments.completed_at IS NULL
			      AND validator_assignments.assigned_at <= $4`,
			validationID, validatorIdentity, now, staleBefore)
		if err != nil {
			return nil, fmt.Errorf("claim task: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n != 1 {
			continue
		}

		tokens, err := tokensFromJSON(rc.tokensJSON)
		if err != nil {
			return nil, err
		}
		sub := rc.sub
		sub.Tokens = tokens
		sub.ValidationID = &validationID
		sub.SelectedForValidation = true
		if rc.postURL.Valid {
			sub.PostURL = rc.postURL.String
		}

		claimed = append(claimed, ValidationCandidate{
			ValidationID:  validationID,
			MinerIdentity: sub.MinerIdentity,
			Submission:    sub,
			SelectedAt:    sub.AcceptedAt,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return claimed, nil
}

func (p *Postgres) RecordResult(ctx context.Context, validationID, validatorIdentity string, success bool, failureReason json.RawMessage, validatedAt int64) (ValidationResult, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return ValidationResult{}, err
	}
	defer tx.Rollback()

	var minerIdentity, postID string
	err = tx.QueryRowContext(ctx, `
		SELECT miner_identity, post_id FROM submissions WHERE validation_id = $1`,
		validationID).Scan(&minerIdentity, &postID)
	if errors.Is(err, sql.ErrNoRows) {
		return ValidationResult{}, ErrUnknownValidationID
	}
	if err != nil {
		return ValidationResult{}, fmt.Errorf("lookup submission by validation id: %w", err)
	}

	var assignedValidator string
	err = tx.QueryRowContext(ctx, `
		SELECT validator_identity FROM validator_assignments WHERE validation_id = $1`,
		validationID).Scan(&assignedValidator)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && assignedValidator != validatorIdentity) {
		return ValidationResult{}, ErrNotAssigned
	}
	if err != nil {
		return ValidationResult{}, fmt.Errorf("lookup assignment: %w", err)
	}

	// Re-recording from the same validator (e.g. a corrected outcome) is
	// allowed to overwrite completed_at, matching the "last writer wins"
	// upsert semantics of the result row below.
	if _, err := tx.ExecContext(ctx, `
		UPDATE validator_assignments SET completed_at = $2
		WHERE validation_id = $1`,
		validationID, validatedAt); err != nil {
		return ValidationResult{}, fmt.Errorf("complete assignment: %w", err)
	}

	result := ValidationResult{
		ValidationID:      validationID,
		ValidatorIdentity: validatorIdentity,
		MinerIdentity:     minerIdentity,
		PostID:            postID,
		Success:           success,
		FailureReason:     failureReason,
		ValidatedAt:       validatedAt,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO validation_results (
			validation_id, validator_identity, miner_identity, post_id,
			success, failure_reason, validated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (validation_id) DO UPDATE SET
			validator_identity = EXCLUDED.validator_identity,
			success = EXCLUDED.success,
			failure_reason = EXCLUDED.failure_reason,
			validated_at = EXCLUDED.validated_at`,
		result.ValidationID, result.ValidatorIdentity, result.MinerIdentity,
		result.PostID, result.Success, string(result.FailureReason), result.ValidatedAt)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("upsert validation result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ValidationResult{}, err
	}
	return result, nil
}

func (p *Postgres) WindowAggregates(ctx context.Context, windowStart, windowEnd int64) ([]MinerWindowScore, int64, int64, error) {
	// had_x_failure comes from the submissions row itself (the Promoter's
	// own verification failure, spec §4.5). had_validator_failure is a
	// distinct set: any validation_results row recorded against a
	// submission in this window with success=false. A submission that
	// never reached a validator (x_failure) never has a validation_results
	// row at all, so the two sets cannot be collapsed into one BOOL_OR.
	rows, err := p.db.QueryContext(ctx, `
		SELECT s.miner_identity, COUNT(*), AVG(s.score),
		       BOOL_OR(s.x_validated AND s.x_validation_result = FALSE),
		       COALESCE(BOOL_OR(vr.success = FALSE), FALSE)
		FROM submissions s
		LEFT JOIN validation_results vr
		       ON vr.miner_identity = s.miner_identity AND vr.post_id = s.post_id
		WHERE s.accepted_block >= $1 AND s.accepted_block < $2
		GROUP BY s.miner_identity`,
		windowStart, windowEnd)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("aggregate window: %w", err)
	}
	defer rows.Close()

	var scores []MinerWindowScore
	var totalSubmissions int64
	for rows.Next() {
		var s MinerWindowScore
		if err := rows.Scan(&s.MinerIdentity, &s.SubmissionsCount, &s.RawAvgScore, &s.HadXFailure, &s.HadValidatorFailure); err != nil {
			return nil, 0, 0, err
		}
		if s.HadXFailure || s.HadValidatorFailure {
			s.FinalScore = 0
		} else {
			s.FinalScore = s.RawAvgScore
		}
		totalSubmissions += s.SubmissionsCount
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}

	return scores, totalSubmissions, int64(len(scores)), nil
}

func (p *Postgres) UpsertWindow(ctx context.Context, w *Window, scores []MinerWindowScore) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var windowID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO windows (
			window_start_block, window_end_block, blocks_per_window,
			min_accepted_at, max_accepted_at, calculated_at,
			submissions_count, distinct_miners_count
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (window_start_block) DO UPDATE SET
			window_end_block = EXCLUDED.window_end_block,
			min_accepted_at = EXCLUDED.min_accepted_at,
			max_accepted_at = EXCLUDED.max_accepted_at,
			calculated_at = EXCLUDED.calculated_at,
			submissions_count = EXCLUDED.submissions_count,
			distinct_miners_count = EXCLUDED.distinct_miners_count
		RETURNING id`,
		w.WindowStartBlock, w.WindowEndBlock, w.BlocksPerWindow,
		nullableInt64(w.MinAcceptedAt), nullableInt64(w.MaxAcceptedAt), w.CalculatedAt,
		w.SubmissionsCount, w.DistinctMinersCount).Scan(&windowID)
	if err != nil {
		return 0, fmt.Errorf("upsert window: %w", err)
	}

	for _, s := range scores {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO miner_window_scores (
				window_id, miner_identity, submissions_count, raw_avg_score,
				final_score, had_validator_failure, had_x_failure
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (window_id, miner_identity) DO UPDATE SET
				submissions_count = EXCLUDED.submissions_count,
				raw_avg_score = EXCLUDED.raw_avg_score,
				final_score = EXCLUDED.final_score,
				had_validator_failure = EXCLUDED.had_validator_failure,
				had_x_failure = EXCLUDED.had_x_failure`,
			windowID, s.MinerIdentity, s.SubmissionsCount, s.RawAvgScore,
			s.FinalScore, s.HadValidatorFailure, s.HadXFailure)
		if err != nil {
			return 0, fmt.Errorf("upsert miner window score: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE submissions SET window_id = $3
		WHERE accepted_block >= $1 AND accepted_block <= $2`,
		w.WindowStartBlock, w.WindowEndBlock, windowID)
	if err != nil {
		return 0, fmt.Errorf("backfill window_id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return windowID, nil
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func (p *Postgres) LoadWindowScores(ctx context.Context, windowStartBlock int64) (int64, []MinerWindowScore, bool, error) {
	var windowID int64
	err := p.db.QueryRowContext(ctx, `
		SELECT id FROM windows WHERE window_start_block = $1`, windowStartBlock).Scan(&windowID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, fmt.Errorf("load window: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT miner_identity, submissions_count, raw_avg_score, final_score,
		       had_validator_failure, had_x_failure
		FROM miner_window_scores WHERE window_id = $1
		ORDER BY final_score DESC`, windowID)
	if err != nil {
		return 0, nil, false, fmt.Errorf("load miner window scores: %w", err)
	}
	defer rows.Close()

	var scores []MinerWindowScore
	for rows.Next() {
		var s MinerWindowScore
		s.WindowID = windowID
		if err := rows.Scan(&s.MinerIdentity, &s.SubmissionsCount, &s.RawAvgScore,
			&s.FinalScore, &s.HadValidatorFailure, &s.HadXFailure); err != nil {
			return 0, nil, false, err
		}
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, false, err
	}

	return windowID, scores, true, nil
}

var _ Store = (*Postgres)(nil)
