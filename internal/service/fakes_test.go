package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/trendslot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory stand-in for the PostgreSQL stores. It enforces
// the active-slot uniqueness and the guarded settlement the same way the
// schema does.
type memStore struct {
	mu          sync.Mutex
	predictions map[string]domain.Prediction
	users       map[string]domain.User
	assets      map[string]domain.Asset
	scores      map[string]domain.UserScore
	configs     map[string]domain.SlotConfig
	audit       []domain.AuditEntry

	settleCalls int
	failCreate  error
}

func newMemStore() *memStore {
	return &memStore{
		predictions: make(map[string]domain.Prediction),
		users:       make(map[string]domain.User),
		assets:      make(map[string]domain.Asset),
		scores:      make(map[string]domain.UserScore),
		configs:     make(map[string]domain.SlotConfig),
	}
}

type predictionStore struct{ *memStore }
type userStore struct{ *memStore }
type assetStore struct{ *memStore }
type scoreStore struct{ *memStore }
type configStore struct{ *memStore }
type auditStore struct{ *memStore }

func (m *memStore) Predictions() *predictionStore { return &predictionStore{m} }
func (m *memStore) Users() *userStore             { return &userStore{m} }
func (m *memStore) Assets() *assetStore           { return &assetStore{m} }
func (m *memStore) Scores() *scoreStore           { return &scoreStore{m} }
func (m *memStore) Configs() *configStore         { return &configStore{m} }
func (m *memStore) Audit() *auditStore            { return &auditStore{m} }

// --- predictions ---

func (s *predictionStore) Create(_ context.Context, p domain.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return s.failCreate
	}
	for _, existing := range s.predictions {
		if existing.Status == domain.PredictionActive && existing.Key() == p.Key() {
			return fmt.Errorf("mem: %w", domain.ErrAlreadyExists)
		}
	}
	s.predictions[p.ID] = p
	return nil
}

func (s *predictionStore) GetByID(_ context.Context, id string) (domain.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.predictions[id]
	if !ok {
		return domain.Prediction{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *predictionStore) ExistsActive(_ context.Context, key domain.SlotKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.predictions {
		if p.Status == domain.PredictionActive && p.Key() == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *predictionStore) ListByUser(_ context.Context, userID string, opts domain.ListOpts) ([]domain.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Prediction
	for _, p := range s.predictions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *predictionStore) ListMatured(_ context.Context, now time.Time, after domain.MaturedCursor, limit int) ([]domain.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Prediction
	for _, p := range s.predictions {
		if p.Status != domain.PredictionActive || p.ExpiresAt.After(now) {
			continue
		}
		if !after.IsZero() && !afterCursor(p, after) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func afterCursor(p domain.Prediction, c domain.MaturedCursor) bool {
	if p.ExpiresAt.Equal(c.ExpiresAt) {
		return p.ID > c.ID
	}
	return p.ExpiresAt.After(c.ExpiresAt)
}

func (s *predictionStore) ListEvaluated(_ context.Context, since, until time.Time) ([]domain.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Prediction
	for _, p := range s.predictions {
		if p.Status == domain.PredictionEvaluated && p.EvaluatedAt != nil &&
			!p.EvaluatedAt.Before(since) && p.EvaluatedAt.Before(until) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *predictionStore) Settle(_ context.Context, st domain.Settlement) (domain.SettleOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settleCalls++

	p, ok := s.predictions[st.PredictionID]
	if !ok {
		return domain.SettleOutcome{}, domain.ErrNotFound
	}
	if p.Status != domain.PredictionActive {
		return domain.SettleOutcome{}, fmt.Errorf("%w: %s", domain.ErrNotActive, p.ID)
	}

	points := st.Points
	at := st.EvaluatedAt
	p.Status = domain.PredictionEvaluated
	p.Result = st.Result
	p.PointsAwarded = &points
	p.PriceEnd = st.PriceEnd
	p.EvaluatedAt = &at
	p.EvaluatedBy = st.EvaluatedBy
	s.predictions[p.ID] = p

	score, existed := s.scores[p.UserID]
	score.UserID = p.UserID
	if st.Correct() {
		score.CorrectPredictions++
	}
	score.TotalPredictions++
	score.EvaluatedPredictions++
	if score.ScoreMonth != st.ScoreMonth {
		score.MonthlyScore = 0
	}
	score.MonthlyScore += int64(st.Points)
	score.ScoreMonth = st.ScoreMonth
	score.TotalScore += int64(st.Points)
	s.scores[p.UserID] = score

	return domain.SettleOutcome{Prediction: p, ScoreRowCreated: !existed}, nil
}

// --- users / assets ---

func (s *userStore) GetByID(_ context.Context, id string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (s *assetStore) GetBySymbol(_ context.Context, symbol string) (domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assets {
		if a.Symbol == symbol {
			return a, nil
		}
	}
	return domain.Asset{}, domain.ErrNotFound
}

func (s *assetStore) GetByID(_ context.Context, id string) (domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[id]
	if !ok {
		return domain.Asset{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *assetStore) Upsert(_ context.Context, a domain.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[a.ID] = a
	return nil
}

func (s *assetStore) ListActive(_ context.Context) ([]domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Asset
	for _, a := range s.assets {
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

// --- scores ---

func (s *scoreStore) IncrementSubmitted(_ context.Context, userID, month string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	score := s.scores[userID]
	score.UserID = userID
	score.TotalPredictions++
	if score.ScoreMonth != month {
		score.MonthlyScore = 0
	}
	score.ScoreMonth = month
	s.scores[userID] = score
	return nil
}

func (s *scoreStore) Get(_ context.Context, userID string) (domain.UserScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	score, ok := s.scores[userID]
	if !ok {
		return domain.UserScore{}, domain.ErrNotFound
	}
	return score, nil
}

// --- slot configs ---

func configKey(duration string, n int) string { return fmt.Sprintf("%s/%d", duration, n) }

func (s *configStore) SeedIfEmpty(_ context.Context, rows []domain.SlotConfig) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.configs) > 0 {
		return 0, nil
	}
	for _, r := range rows {
		s.configs[configKey(r.Duration, r.SlotNumber)] = r
	}
	return len(rows), nil
}

func (s *configStore) Get(_ context.Context, duration string, n int) (domain.SlotConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.configs[configKey(duration, n)]
	if !ok {
		return domain.SlotConfig{}, domain.ErrNotFound
	}
	return c, nil
}

func (s *configStore) ListByDuration(_ context.Context, duration string) ([]domain.SlotConfig, error) {
	all, _ := s.List(context.Background())
	var out []domain.SlotConfig
	for _, c := range all {
		if c.Duration == duration {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *configStore) List(_ context.Context) ([]domain.SlotConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SlotConfig, 0, len(s.configs))
	for _, c := range s.configs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Duration == out[j].Duration {
			return out[i].SlotNumber < out[j].SlotNumber
		}
		return out[i].Duration < out[j].Duration
	})
	return out, nil
}

func (s *configStore) UpdatePoints(_ context.Context, duration string, n, points, penalty int) (domain.SlotConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := configKey(duration, n)
	c, ok := s.configs[k]
	if !ok {
		return domain.SlotConfig{}, domain.ErrNotFound
	}
	c.PointsIfCorrect, c.PenaltyIfWrong = points, penalty
	s.configs[k] = c
	return c, nil
}

func (s *auditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, domain.AuditEntry{ID: int64(len(s.audit) + 1), Event: event, Detail: detail})
	return nil
}

func (s *auditStore) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditEntry(nil), s.audit...), nil
}

// --- price feed / cache / locks ---

type stubFeed struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	err    error
	calls  int
}

func (f *stubFeed) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return decimal.Zero, f.err
	}
	p, ok := f.prices[symbol]
	if !ok {
		return decimal.Zero, domain.ErrNotFound
	}
	return p, nil
}

func (f *stubFeed) set(symbol, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prices == nil {
		f.prices = make(map[string]decimal.Decimal)
	}
	f.prices[symbol] = decimal.RequireFromString(price)
}

type memQuoteCache struct {
	mu     sync.Mutex
	quotes map[string]struct {
		price decimal.Decimal
		at    time.Time
	}
}

func (c *memQuoteCache) SetQuote(_ context.Context, symbol string, price decimal.Decimal, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quotes == nil {
		c.quotes = make(map[string]struct {
			price decimal.Decimal
			at    time.Time
		})
	}
	c.quotes[symbol] = struct {
		price decimal.Decimal
		at    time.Time
	}{price, ts}
	return nil
}

func (c *memQuoteCache) GetQuote(_ context.Context, symbol string) (decimal.Decimal, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quotes[symbol]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	return q.price, q.at, nil
}

type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

type recordingAlerter struct {
	mu     sync.Mutex
	events []string
}

func (a *recordingAlerter) Notify(_ context.Context, event, _, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

var (
	_ domain.PredictionStore = (*predictionStore)(nil)
	_ domain.UserStore       = (*userStore)(nil)
	_ domain.AssetStore      = (*assetStore)(nil)
	_ domain.UserScoreStore  = (*scoreStore)(nil)
	_ domain.SlotConfigStore = (*configStore)(nil)
	_ domain.AuditStore      = (*auditStore)(nil)
	_ domain.PriceFeed       = (*stubFeed)(nil)
	_ domain.QuoteCache      = (*memQuoteCache)(nil)
	_ domain.LockManager     = (*memLocks)(nil)
)
