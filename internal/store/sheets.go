package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/shpitdev/listing-enricher/internal/core"
	"github.com/shpitdev/listing-enricher/internal/retry"
)

type SheetsConfig struct {
	SpreadsheetID string
	// Sheet is the tab title. Empty means the first tab.
	Sheet string

	// CredentialsFile is a service-account JSON key. Empty falls back to application
	// default credentials unless Endpoint is set.
	CredentialsFile string

	// Endpoint overrides the API base URL and disables authentication. Used with the
	// local mock server.
	Endpoint string

	// Retries bounds extra attempts on 429 and 5xx responses. Zero means 3; negative
	// disables retries.
	Retries int
	Backoff time.Duration
	Logger  *zap.Logger
}

// Sheets appends rows to one tab of a Google spreadsheet.
type Sheets struct {
	svc     *sheets.Service
	id      string
	sheet   string
	retries int
	backoff time.Duration
	log     *zap.Logger
}

// SpreadsheetInfo is what the connectivity check reports.
type SpreadsheetInfo struct {
	Title  string
	Sheets []string
}

func NewSheets(ctx context.Context, cfg SheetsConfig) (*Sheets, error) {
	id := strings.TrimSpace(cfg.SpreadsheetID)
	if id == "" {
		return nil, errors.New("spreadsheet id is required")
	}

	var opts []option.ClientOption
	switch {
	case strings.TrimSpace(cfg.Endpoint) != "":
		opts = append(opts,
			option.WithEndpoint(strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")+"/"),
			option.WithoutAuthentication(),
		)
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		opts = append(opts,
			option.WithCredentialsFile(strings.TrimSpace(cfg.CredentialsFile)),
			option.WithScopes(sheets.SpreadsheetsScope),
		)
	default:
		opts = append(opts, option.WithScopes(sheets.SpreadsheetsScope))
	}

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	s := &Sheets{
		svc:     svc,
		id:      id,
		sheet:   strings.TrimSpace(cfg.Sheet),
		retries: cfg.Retries,
		backoff: cfg.Backoff,
		log:     cfg.Logger,
	}
	if s.retries == 0 {
		s.retries = 3
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s, nil
}

// Info fetches the spreadsheet title and tab names.
func (s *Sheets) Info(ctx context.Context) (SpreadsheetInfo, error) {
	ss, _, err := retry.Do(ctx, s.retryOptions("get"), func(ctx context.Context) (*sheets.Spreadsheet, error) {
		ss, err := s.svc.Spreadsheets.Get(s.id).
			Fields("properties.title", "sheets.properties.title").
			Context(ctx).
			Do()
		return ss, classifyErr(err)
	})
	if err != nil {
		return SpreadsheetInfo{}, fmt.Errorf("get spreadsheet: %w", err)
	}
	info := SpreadsheetInfo{}
	if ss.Properties != nil {
		info.Title = ss.Properties.Title
	}
	for _, sh := range ss.Sheets {
		if sh != nil && sh.Properties != nil {
			info.Sheets = append(info.Sheets, sh.Properties.Title)
		}
	}
	return info, nil
}

func (s *Sheets) Clear(ctx context.Context) error {
	rng, err := s.tabRange(ctx, "")
	if err != nil {
		return err
	}
	_, _, err = retry.Do(ctx, s.retryOptions("clear"), func(ctx context.Context) (*sheets.ClearValuesResponse, error) {
		resp, err := s.svc.Spreadsheets.Values.Clear(s.id, rng, &sheets.ClearValuesRequest{}).Context(ctx).Do()
		return resp, classifyErr(err)
	})
	if err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	return nil
}

func (s *Sheets) AppendRows(ctx context.Context, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	rng, err := s.tabRange(ctx, "A1")
	if err != nil {
		return err
	}
	values := make([][]any, 0, len(rows))
	for _, row := range rows {
		vals := make([]any, len(row))
		for i, v := range row {
			vals[i] = v
		}
		values = append(values, vals)
	}
	vr := &sheets.ValueRange{MajorDimension: "ROWS", Values: values}

	// Append is not idempotent: a timeout or 5xx may still have committed the rows, so
	// only a rate-limit rejection is retried.
	opts := s.retryOptions("append")
	opts.Retryable = rejected
	_, _, err = retry.Do(ctx, opts, func(ctx context.Context) (*sheets.AppendValuesResponse, error) {
		resp, err := s.svc.Spreadsheets.Values.Append(s.id, rng, vr).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		return resp, classifyErr(err)
	})
	if err != nil {
		return fmt.Errorf("append %d row(s): %w", len(rows), err)
	}
	return nil
}

// tabRange returns an A1 range on the configured tab, resolving the first tab's title
// on first use.
func (s *Sheets) tabRange(ctx context.Context, cell string) (string, error) {
	if s.sheet == "" {
		info, err := s.Info(ctx)
		if err != nil {
			return "", err
		}
		if len(info.Sheets) == 0 {
			return "", fmt.Errorf("spreadsheet %s has no sheets", s.id)
		}
		s.sheet = info.Sheets[0]
	}
	rng := "'" + strings.ReplaceAll(s.sheet, "'", "''") + "'"
	if cell != "" {
		rng += "!" + cell
	}
	return rng, nil
}

func (s *Sheets) retryOptions(op string) retry.Options {
	return retry.Options{
		MaxRetries:        s.retries,
		AttemptTimeout:    30 * time.Second,
		BackoffInitial:    s.backoff,
		BackoffMax:        10 * time.Second,
		BackoffJitterFrac: 0.2,
		OnRetry: func(attempt int, err error, sleep time.Duration) {
			s.log.Warn("sheets request failed, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("sleep", sleep),
				zap.Error(err),
			)
		},
	}
}

// rejected reports whether the API refused the request before applying it.
func rejected(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests
}

func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == 429 || gerr.Code/100 == 5 {
			return &core.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &core.TransientError{Err: err}
	}
	return err
}
