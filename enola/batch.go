package enola

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const (
	batchHeadPath   = "/v1/tracking-batch/head"
	batchDetailPath = "/v1/tracking-batch"

	// DefaultBatchSize is the number of rows sent per flush when
	// TrackingBatchConfig.BatchSize is zero.
	DefaultBatchSize = 200
)

// ColumnMapping binds dataset columns to tracking fields. Score
// mappings land on the per-row scoring step; the rest overwrite the
// sender identity for that row. Empty names are unmapped.
type ColumnMapping struct {
	ScoreValue   string
	ScoreGroup   string
	ScoreCluster string
	ClientID     string
	ProductID    string
	ChannelID    string
	ChannelName  string
	SessionID    string
	SessionName  string
	UserID       string
	UserName     string
	AppID        string
	AppName      string
	IP           string
	ExternalID   string
}

// TrackingBatchConfig holds the settings for a batch tracking run.
type TrackingBatchConfig struct {
	// Token is the service-account JWT issued by the Enola admin app.
	Token string

	// Name of the batch run; it also names every per-row step. Empty
	// falls back to "Prediction" for step names.
	Name string

	// Dataset holds the rows to submit. Required, and must not be empty.
	Dataset *Dataset

	// Mapping binds dataset columns to tracking fields. At least one of
	// the three score mappings is required.
	Mapping ColumnMapping

	// Period is the business period the rows belong to. Every row's
	// timestamps are backdated to it. Required.
	Period time.Time

	// BatchSize is the number of rows per flush. Zero means
	// DefaultBatchSize.
	BatchSize int

	IsTest bool

	// Default sender identity; row mappings overwrite these per row.
	AppID       string
	AppName     string
	UserID      string
	UserName    string
	SessionID   string
	SessionName string
	ChannelID   string
	ChannelName string
	IP          string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// TrackingBatch submits a dataset of scored rows as one server-side
// batch: a head registration followed by chunked row submissions. Not
// safe for concurrent use.
type TrackingBatch struct {
	Name string

	tokenInfo *TokenInfo
	conn      *connection
	dataset   *Dataset
	mapping   ColumnMapping
	period    time.Time
	batchSize int
	isTest    bool
	sender    Sender
	logger    *slog.Logger

	batchID string
}

// NewTrackingBatch validates the configuration, decodes the token, and
// prepares a batch run. Every mapped column is checked against the
// dataset up front; an unknown column fails with *ColumnNotFoundError
// before anything reaches the server.
func NewTrackingBatch(cfg TrackingBatchConfig) (*TrackingBatch, error) {
	if cfg.Dataset == nil || cfg.Dataset.Len() == 0 {
		return nil, &ConfigurationError{Message: "dataset is empty"}
	}
	if cfg.Mapping.ScoreValue == "" && cfg.Mapping.ScoreGroup == "" && cfg.Mapping.ScoreCluster == "" {
		return nil, &ConfigurationError{Message: "at least one score column mapping is required"}
	}
	if cfg.Period.IsZero() {
		return nil, &ConfigurationError{Message: "period is empty"}
	}
	if err := checkMapping(cfg.Dataset, cfg.Mapping); err != nil {
		return nil, err
	}

	info, err := DecodeToken(cfg.Token)
	if err != nil {
		return nil, err
	}
	if err := info.requireServiceAccount(); err != nil {
		return nil, err
	}
	if !info.CanTracking {
		return nil, &UnauthorizedError{Reason: "service account can't execute tracking"}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &TrackingBatch{
		Name:      cfg.Name,
		tokenInfo: info,
		conn:      newConnection(info.BackendURL, cfg.Token, info.OrgID, cfg.HTTPClient),
		dataset:   cfg.Dataset,
		mapping:   cfg.Mapping,
		period:    cfg.Period.UTC(),
		batchSize: batchSize,
		isTest:    cfg.IsTest,
		logger:    logger,
		sender: Sender{
			AppID:       cfg.AppID,
			AppName:     cfg.AppName,
			UserID:      cfg.UserID,
			UserName:    cfg.UserName,
			SessionID:   cfg.SessionID,
			SessionName: cfg.SessionName,
			ChannelID:   cfg.ChannelID,
			ChannelName: cfg.ChannelName,
			IP:          cfg.IP,
		},
	}, nil
}

func checkMapping(ds *Dataset, m ColumnMapping) error {
	for _, bind := range []struct{ mapping, column string }{
		{"score_value", m.ScoreValue},
		{"score_group", m.ScoreGroup},
		{"score_cluster", m.ScoreCluster},
		{"client_id", m.ClientID},
		{"product_id", m.ProductID},
		{"channel_id", m.ChannelID},
		{"channel_name", m.ChannelName},
		{"session_id", m.SessionID},
		{"session_name", m.SessionName},
		{"user_id", m.UserID},
		{"user_name", m.UserName},
		{"app_id", m.AppID},
		{"app_name", m.AppName},
		{"ip", m.IP},
		{"external_id", m.ExternalID},
	} {
		if bind.column != "" && !ds.HasColumn(bind.column) {
			return &ColumnNotFoundError{Mapping: bind.mapping, Column: bind.column}
		}
	}
	return nil
}

// BatchID returns the server-assigned batch id, set after the head
// registration succeeds.
func (b *TrackingBatch) BatchID() string { return b.batchID }

// Execute registers the batch head (once, on the first call) and then
// submits every dataset row as a one-step scored execution, flushed to
// the server in chunks of BatchSize rows. It returns one TrackingResponse
// per accepted row.
//
// A failed head registration returns before any row is built. A failed
// flush returns the responses collected so far along with the error.
func (b *TrackingBatch) Execute(ctx context.Context) ([]TrackingResponse, error) {
	if b.batchID == "" {
		b.logger.Info("enola: creating batch", "name", b.Name, "rows", b.dataset.Len())
		head := batchHeadPayload{
			AppID:       b.sender.AppID,
			AppName:     b.sender.AppName,
			UserID:      b.sender.UserID,
			UserName:    b.sender.UserName,
			SessionID:   b.sender.SessionID,
			SessionName: b.sender.SessionName,
			ChannelID:   b.sender.ChannelID,
			ChannelName: b.sender.ChannelName,
			IP:          b.sender.IP,
			Name:        b.Name,
			Period:      b.period.Format(apiTimeLayout),
			IsTest:      b.isTest,
			TotalRows:   b.dataset.Len(),
		}
		var resp BatchHeadResponse
		if err := b.conn.post(ctx, batchHeadPath, head, &resp); err != nil {
			return nil, fmt.Errorf("enola: create batch head: %w", err)
		}
		if !resp.Successful || resp.BatchID == "" {
			return nil, fmt.Errorf("enola: batch head rejected: %s", resp.Message)
		}
		b.batchID = resp.BatchID
		b.sender.BatchID = resp.BatchID
	}

	totalRows := b.dataset.Len()
	var (
		buffer  []trackingPayload
		results []TrackingResponse
	)
	for row := 0; row < totalRows; row++ {
		payload, err := b.buildRow(row)
		if err != nil {
			return results, err
		}
		buffer = append(buffer, payload)

		if len(buffer) == b.batchSize || row == totalRows-1 {
			var resp batchDetailResponse
			if err := b.conn.post(ctx, batchDetailPath, buffer, &resp); err != nil {
				return results, fmt.Errorf("enola: submit batch rows: %w", err)
			}
			if !resp.Successful {
				return results, fmt.Errorf("enola: batch rows rejected: %s", resp.Message)
			}
			results = append(results, resp.TrackingList...)
			b.logger.Info("enola: batch progress", "name", b.Name, "sent", len(results), "total", totalRows)
			buffer = buffer[:0]
		}
	}

	b.logger.Info("enola: batch finished", "name", b.Name, "batch_id", b.batchID)
	return results, nil
}

// buildRow turns one dataset row into a single-step tracking payload.
// The step carries every column as extra info, its score from the score
// mappings, and timestamps backdated to the batch period. Sender
// mappings overwrite the run's sender before it is snapshotted into the
// payload.
func (b *TrackingBatch) buildRow(row int) (trackingPayload, error) {
	name := b.Name
	if name == "" {
		name = "Prediction"
	}
	step := newStep(name, "")

	for _, column := range b.dataset.Columns() {
		value, _ := b.dataset.Value(row, column)
		step.AddExtraInfo(column, value)
	}

	var scoreValue float64
	if b.mapping.ScoreValue != "" {
		value, _ := b.dataset.Value(row, b.mapping.ScoreValue)
		parsed, err := toFloat(value)
		if err != nil {
			return trackingPayload{}, &ConfigurationError{Message: fmt.Sprintf(
				"row %d: column %q: %v", row, b.mapping.ScoreValue, err)}
		}
		scoreValue = parsed
	}
	var scoreGroup, scoreCluster string
	if b.mapping.ScoreGroup != "" {
		value, _ := b.dataset.Value(row, b.mapping.ScoreGroup)
		scoreGroup = toString(value)
	}
	if b.mapping.ScoreCluster != "" {
		value, _ := b.dataset.Value(row, b.mapping.ScoreCluster)
		scoreCluster = toString(value)
	}

	b.applySenderMappings(row)

	step.Type = StepTypeScore
	step.SetScore(scoreValue, scoreGroup, scoreCluster, b.period)
	step.close(true, "")

	return buildTrackingPayload(b.sender, b.isTest, "", []*Step{step}, 1), nil
}

func (b *TrackingBatch) applySenderMappings(row int) {
	assign := func(column string, dest *string) {
		if column == "" {
			return
		}
		value, _ := b.dataset.Value(row, column)
		*dest = toString(value)
	}
	assign(b.mapping.ClientID, &b.sender.ClientID)
	assign(b.mapping.ProductID, &b.sender.ProductID)
	assign(b.mapping.ChannelID, &b.sender.ChannelID)
	assign(b.mapping.ChannelName, &b.sender.ChannelName)
	assign(b.mapping.SessionID, &b.sender.SessionID)
	assign(b.mapping.SessionName, &b.sender.SessionName)
	assign(b.mapping.UserID, &b.sender.UserID)
	assign(b.mapping.UserName, &b.sender.UserName)
	assign(b.mapping.AppID, &b.sender.AppID)
	assign(b.mapping.AppName, &b.sender.AppName)
	assign(b.mapping.IP, &b.sender.IP)
	assign(b.mapping.ExternalID, &b.sender.ExternalID)
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		if v == "" {
			return 0, nil
		}
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("value %v is not numeric", value)
	}
}

func toString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// batchHeadPayload is the wire format for POST /v1/tracking-batch/head.
type batchHeadPayload struct {
	AppID       string `json:"agentExecBatchCliAppId"`
	AppName     string `json:"agentExecBatchCliAppName"`
	UserID      string `json:"agentExecBatchCliUserId"`
	UserName    string `json:"agentExecBatchCliUserName"`
	SessionID   string `json:"agentExecBatchCliSessionId"`
	ChannelID   string `json:"agentExecBatchCliChannel"`
	ChannelName string `json:"agentExecBatchCliChannelName"`
	SessionName string `json:"agentExecBatchCliSessionName"`
	IP          string `json:"agentExecBatchCliIP"`
	Name        string `json:"agentExecBatchName"`
	Period      string `json:"agentExecBatchPeriodData"`
	IsTest      bool   `json:"agentExecBatchIsTest"`
	TotalRows   int    `json:"agentExecBatchNumRowsTotal"`
}
