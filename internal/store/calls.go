package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateCall records a new call. Re-delivery of the inbound webhook for an
// already-known call SID is a no-op; the return reports whether this
// invocation created the row.
func (s *Store) CreateCall(ctx context.Context, callID, callerID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO calls (call_id, caller_id, start_time) VALUES ($1, $2, $3)
		 ON CONFLICT (call_id) DO NOTHING`,
		callID, callerID, time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return false, fmt.Errorf("create call: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create call rows: %w", err)
	}
	return n > 0, nil
}

// GetCall returns the call row, or nil if the call ID is unknown.
func (s *Store) GetCall(ctx context.Context, callID string) (*Call, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT call_id, caller_id, start_time, end_time, final_decision FROM calls WHERE call_id = $1`,
		callID,
	)
	c, err := scanCall(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get call: %w", err)
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (*Call, error) {
	var c Call
	var start string
	var end, decision sql.NullString
	if err := row.Scan(&c.CallID, &c.CallerID, &start, &end, &decision); err != nil {
		return nil, err
	}
	c.StartTime = parseTime(start)
	if end.Valid {
		t := parseTime(end.String)
		c.EndTime = &t
	}
	if decision.Valid {
		c.FinalDecision = &decision.String
	}
	return &c, nil
}

// AppendTurn appends one conversation turn. The insert is conditional on
// (call_id, turn_index), so a retried webhook that re-derives the same index
// cannot create a duplicate or a gap. The return reports whether this
// invocation inserted the row; false means the turn was already logged.
func (s *Store) AppendTurn(ctx context.Context, t Turn) (bool, error) {
	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	var latency sql.NullInt64
	if t.LatencyMs != nil {
		latency = sql.NullInt64{Int64: *t.LatencyMs, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation (call_id, turn_index, speaker, text, timestamp, latency_ms)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (call_id, turn_index) DO NOTHING`,
		t.CallID, t.TurnIndex, t.Speaker, t.Text, ts.Format(timeFormat), latency,
	)
	if err != nil {
		return false, fmt.Errorf("append turn: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append turn rows: %w", err)
	}
	return n > 0, nil
}

// Turns returns the full turn history for a call in index order.
func (s *Store) Turns(ctx context.Context, callID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT call_id, turn_index, speaker, text, timestamp, latency_ms
		 FROM conversation WHERE call_id = $1 ORDER BY turn_index ASC`,
		callID,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		t, scanErr := scanTurn(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan turn: %w", scanErr)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func scanTurn(row rowScanner) (Turn, error) {
	var t Turn
	var ts string
	var latency sql.NullInt64
	if err := row.Scan(&t.CallID, &t.TurnIndex, &t.Speaker, &t.Text, &ts, &latency); err != nil {
		return Turn{}, err
	}
	t.Timestamp = parseTime(ts)
	if latency.Valid {
		t.LatencyMs = &latency.Int64
	}
	return t, nil
}

// FinishCall sets the final decision and end time in one statement, and only
// if no decision has been recorded yet. Returns true when this invocation was
// the one that finished the call.
func (s *Store) FinishCall(ctx context.Context, callID, decision string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE calls SET end_time = $1, final_decision = $2
		 WHERE call_id = $3 AND final_decision IS NULL`,
		time.Now().UTC().Format(timeFormat), decision, callID,
	)
	if err != nil {
		return false, fmt.Errorf("finish call: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finish call rows: %w", err)
	}
	return n > 0, nil
}

// RecentCalls returns up to limit calls, newest first, each with its full
// ordered turn history.
func (s *Store) RecentCalls(ctx context.Context, limit int) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT call_id, caller_id, start_time, end_time, final_decision
		 FROM calls ORDER BY start_time DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		c, scanErr := scanCall(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan call: %w", scanErr)
		}
		convs = append(convs, Conversation{Call: *c, Turns: []Turn{}})
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	for i := range convs {
		turns, turnErr := s.Turns(ctx, convs[i].CallID)
		if turnErr != nil {
			return nil, turnErr
		}
		if turns != nil {
			convs[i].Turns = turns
		}
	}
	return convs, nil
}
