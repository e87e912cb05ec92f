package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pocketops/checkin-bridge/internal/agent/scheduler"
	"github.com/pocketops/checkin-bridge/internal/checkins"
)

// ServerCompletion answers scheduler dedup checks against the server's
// check-in history over the REST API. The server derives its today view from
// persisted records, so this survives agent restarts. When the server is
// unreachable the configured fallback (normally the in-memory mirror)
// answers instead; scheduling keeps working offline.
type ServerCompletion struct {
	baseURL  string
	token    string
	httpc    *http.Client
	fallback scheduler.CompletionSource
}

func NewServerCompletion(baseURL, token string) *ServerCompletion {
	return &ServerCompletion{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *ServerCompletion) Attempted(ctx context.Context, day time.Time, kind checkins.ActionKind) (bool, error) {
	today, err := s.fetchToday(ctx)
	if err != nil {
		if s.fallback != nil {
			return s.fallback.Attempted(ctx, day, kind)
		}
		return false, err
	}
	return today.ScheduledAttempted(kind), nil
}

func (s *ServerCompletion) fetchToday(ctx context.Context) (checkins.Today, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/checkins/today", nil)
	if err != nil {
		return checkins.Today{}, err
	}
	req.Header.Set("X-Agent-Token", s.token)

	resp, err := s.httpc.Do(req)
	if err != nil {
		return checkins.Today{}, fmt.Errorf("query today checkins: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return checkins.Today{}, fmt.Errorf("query today checkins: status %d", resp.StatusCode)
	}

	var body struct {
		TodayCheckins checkins.Today `json:"today_checkins"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return checkins.Today{}, fmt.Errorf("decode today checkins: %w", err)
	}
	return body.TodayCheckins, nil
}
