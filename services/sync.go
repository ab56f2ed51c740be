package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/RobNhz/zaptec-invoice-app/config"
	"github.com/RobNhz/zaptec-invoice-app/database"
	"github.com/RobNhz/zaptec-invoice-app/models"
	"github.com/RobNhz/zaptec-invoice-app/services/ocpp"
	"github.com/RobNhz/zaptec-invoice-app/services/zaptec"
)

var ErrValidation = errors.New("validation failed")

const (
	MinHistoryDays    = 1
	MaxHistoryDays    = 365
	maxCredentialSize = 256
)

// SyncRequest carries optional per-call credentials. Empty fields fall back
// to the configured ones.
type SyncRequest struct {
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	HistoryDays int    `json:"history_days,omitempty"`
}

type SyncResult struct {
	WindowStart       string  `json:"window_start"`
	WindowEnd         string  `json:"window_end"`
	CostPerKWh        float64 `json:"cost_per_kwh"`
	ChargersSeen      int     `json:"chargers_seen"`
	OwnersCreated     int     `json:"owners_created"`
	RecordsInserted   int     `json:"records_inserted"`
	DuplicatesSkipped int     `json:"duplicates_skipped"`
	EntriesSkipped    int     `json:"entries_skipped"`
}

// ValidateCredentials checks a username/password pair for length bounds.
func ValidateCredentials(username, password string) error {
	if len(username) < 1 || len(username) > maxCredentialSize {
		return fmt.Errorf("%w: username must be between 1 and %d characters", ErrValidation, maxCredentialSize)
	}
	if len(password) < 1 || len(password) > maxCredentialSize {
		return fmt.Errorf("%w: password must be between 1 and %d characters", ErrValidation, maxCredentialSize)
	}
	return nil
}

// HistorySource fetches the raw sessions of one charger.
type HistorySource interface {
	History(ctx context.Context, token, chargerID string, from, to time.Time) ([]zaptec.SessionEntry, error)
}

type zaptecHistory struct {
	api *zaptec.APIClient
}

func (h zaptecHistory) History(ctx context.Context, token, chargerID string, from, to time.Time) ([]zaptec.SessionEntry, error) {
	return h.api.ChargeHistory(ctx, token, chargerID, from, to)
}

// ocppFirstHistory asks the OCPP backend first and falls back to Zaptec
// when it has nothing for the charger.
type ocppFirstHistory struct {
	ocpp     *ocpp.Client
	fallback HistorySource
}

func (h ocppFirstHistory) History(ctx context.Context, token, chargerID string, from, to time.Time) ([]zaptec.SessionEntry, error) {
	sessions, err := h.ocpp.Sessions(ctx, chargerID)
	if err != nil {
		return nil, err
	}
	if len(sessions) > 0 {
		return sessions, nil
	}
	return h.fallback.History(ctx, token, chargerID, from, to)
}

type SyncDeps struct {
	Store   *database.Store
	API     *zaptec.APIClient
	Tokens  *zaptec.TokenCache
	OCPP    *ocpp.Client
	History HistorySource
	Events  EventPublisher
	Metrics *Metrics
	Clock   Clock
	Logger  *zap.Logger
}

type SyncService struct {
	store   *database.Store
	api     *zaptec.APIClient
	tokens  *zaptec.TokenCache
	history HistorySource
	events  EventPublisher
	metrics *Metrics
	clock   Clock
	logger  *zap.Logger

	apiKey      string
	historyDays int
	pricing     config.Pricing
	loc         *time.Location
}

func NewSyncService(cfg *config.Config, deps SyncDeps) *SyncService {
	s := &SyncService{
		store:       deps.Store,
		api:         deps.API,
		tokens:      deps.Tokens,
		history:     deps.History,
		events:      deps.Events,
		metrics:     deps.Metrics,
		clock:       deps.Clock,
		logger:      deps.Logger,
		apiKey:      cfg.ZaptecAPIKey,
		historyDays: cfg.HistoryDays,
		pricing:     cfg.Pricing,
		loc:         cfg.Location(),
	}

	if s.history == nil {
		s.history = zaptecHistory{api: deps.API}
		if deps.OCPP != nil {
			s.history = ocppFirstHistory{ocpp: deps.OCPP, fallback: s.history}
		}
	}
	if s.events == nil {
		s.events = NoopPublisher{}
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// ResolveToken picks the vendor token for a run: an explicit token, then
// explicit credentials, then configured credentials, then the static key.
func (s *SyncService) ResolveToken(ctx context.Context, req SyncRequest) (string, error) {
	if req.AccessToken != "" {
		return req.AccessToken, nil
	}

	if req.Username != "" || req.Password != "" {
		if err := ValidateCredentials(req.Username, req.Password); err != nil {
			return "", err
		}
		authResp, err := s.api.Authenticate(ctx, req.Username, req.Password)
		if err != nil {
			return "", err
		}
		return authResp.AccessToken, nil
	}

	if s.tokens != nil && s.tokens.Configured() {
		return s.tokens.Token(ctx)
	}

	if s.apiKey != "" {
		return s.apiKey, nil
	}

	return "", fmt.Errorf("%w: no vendor credentials provided or configured", ErrValidation)
}

type chargerSessions struct {
	charger  zaptec.Charger
	sessions []zaptec.SessionEntry
}

// Run fetches every charger's history and stores new consumption records.
// All vendor calls finish before the first write, and all writes share one
// transaction, so a failed run leaves the database untouched.
func (s *SyncService) Run(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	started := time.Now()
	res, err := s.run(ctx, req)
	s.metrics.observeRun(RunKindSync, time.Since(started), err)
	if err != nil {
		s.logger.Error("sync failed", zap.Error(err))
		return nil, err
	}

	s.metrics.observeSync(res)
	s.events.Publish(ctx, EventSyncCompleted, res)
	s.logger.Info("sync completed",
		zap.Int("chargers", res.ChargersSeen),
		zap.Int("owners_created", res.OwnersCreated),
		zap.Int("records_inserted", res.RecordsInserted),
		zap.Int("duplicates_skipped", res.DuplicatesSkipped),
		zap.Int("entries_skipped", res.EntriesSkipped))
	return res, nil
}

func (s *SyncService) run(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	days := req.HistoryDays
	if days == 0 {
		days = s.historyDays
	}
	if days < MinHistoryDays || days > MaxHistoryDays {
		return nil, fmt.Errorf("%w: history_days must be between %d and %d", ErrValidation, MinHistoryDays, MaxHistoryDays)
	}

	token, err := s.ResolveToken(ctx, req)
	if err != nil {
		return nil, err
	}

	// Captured once so every record of the run carries the same price.
	price := s.pricing.CostPerKWh
	now := s.clock.Now()
	from := now.AddDate(0, 0, -days)

	result := &SyncResult{
		WindowStart: from.In(s.loc).Format(models.DateLayout),
		WindowEnd:   now.In(s.loc).Format(models.DateLayout),
		CostPerKWh:  price,
	}

	chargers, err := s.api.ListChargers(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to list chargers: %w", err)
	}

	var fetched []chargerSessions
	for _, charger := range chargers {
		if charger.ID == "" {
			continue
		}
		sessions, err := s.history.History(ctx, token, charger.ID, from, now)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch history for charger %s: %w", charger.ID, err)
		}
		s.logger.Debug("fetched charge history", zap.String("charger_id", charger.ID), zap.Int("sessions", len(sessions)))
		fetched = append(fetched, chargerSessions{charger: charger, sessions: sessions})
	}
	result.ChargersSeen = len(fetched)

	var records []models.ConsumptionRecord
	for _, cs := range fetched {
		for _, entry := range cs.sessions {
			rec, ok := s.normalize(cs.charger.ID, entry, price, now)
			if !ok {
				result.EntriesSkipped++
				continue
			}
			records = append(records, rec)
		}
	}

	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, cs := range fetched {
			name := cs.charger.Name
			if name == "" {
				name = "Charger " + cs.charger.ID
			}
			created, err := s.store.EnsureOwner(ctx, tx, models.Owner{
				ID:        cs.charger.ID,
				Name:      name,
				Address:   cs.charger.Address,
				ChargerID: cs.charger.ID,
			})
			if err != nil {
				return err
			}
			if created {
				result.OwnersCreated++
			}
		}

		for _, rec := range records {
			inserted, err := s.store.InsertConsumption(ctx, tx, rec)
			if err != nil {
				return err
			}
			if inserted {
				result.RecordsInserted++
			} else {
				result.DuplicatesSkipped++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store sync results: %w", err)
	}

	return result, nil
}

// normalize reduces a raw session to a consumption record with calendar
// dates in the configured time zone.
func (s *SyncService) normalize(chargerID string, entry zaptec.SessionEntry, price float64, now time.Time) (models.ConsumptionRecord, bool) {
	start, end, ok := zaptec.ExtractSessionBounds(entry, s.loc)
	if !ok {
		return models.ConsumptionRecord{}, false
	}

	kwh := zaptec.ExtractKWh(entry)
	if kwh < 0 {
		return models.ConsumptionRecord{}, false
	}

	startDate := start.Format(models.DateLayout)
	endDate := end.Format(models.DateLayout)
	if endDate < startDate {
		return models.ConsumptionRecord{}, false
	}

	return models.ConsumptionRecord{
		ChargerID:   chargerID,
		PeriodStart: startDate,
		PeriodEnd:   endDate,
		KWhUsed:     kwh,
		CostPerKWh:  price,
		TotalCost:   kwh * price,
		FetchedAt:   now,
	}, true
}
