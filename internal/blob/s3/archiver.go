package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/trendslot/internal/domain"
	"github.com/alanyoungcy/trendslot/internal/metrics"
)

const (
	dayLayout   = "2006-01-02"
	contentType = "application/x-ndjson"
)

// EvaluatedSource lists the predictions settled in a time range.
type EvaluatedSource interface {
	ListEvaluated(ctx context.Context, since, until time.Time) ([]domain.Prediction, error)
}

// multipartWriter is implemented by writers that can stream large objects
// in parts.
type multipartWriter interface {
	PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error
}

// archiveRecord is the JSONL line written per prediction.
type archiveRecord struct {
	ID            string           `json:"id"`
	UserID        string           `json:"user_id"`
	AssetID       string           `json:"asset_id"`
	AssetSymbol   string           `json:"asset_symbol"`
	Direction     string           `json:"direction"`
	Duration      string           `json:"duration"`
	SlotNumber    int              `json:"slot_number"`
	SlotStart     time.Time        `json:"slot_start"`
	SlotEnd       time.Time        `json:"slot_end"`
	CreatedAt     time.Time        `json:"created_at"`
	Result        string           `json:"result"`
	PointsAwarded *int             `json:"points_awarded"`
	PriceStart    decimal.Decimal  `json:"price_start"`
	PriceEnd      *decimal.Decimal `json:"price_end"`
	EvaluatedAt   *time.Time       `json:"evaluated_at"`
	EvaluatedBy   string           `json:"evaluated_by"`
}

func toRecord(p domain.Prediction) archiveRecord {
	return archiveRecord{
		ID:            p.ID,
		UserID:        p.UserID,
		AssetID:       p.AssetID,
		AssetSymbol:   p.AssetSymbol,
		Direction:     string(p.Direction),
		Duration:      p.Duration,
		SlotNumber:    p.SlotNumber,
		SlotStart:     p.SlotStart,
		SlotEnd:       p.SlotEnd,
		CreatedAt:     p.CreatedAt,
		Result:        string(p.Result),
		PointsAwarded: p.PointsAwarded,
		PriceStart:    p.PriceStart,
		PriceEnd:      p.PriceEnd,
		EvaluatedAt:   p.EvaluatedAt,
		EvaluatedBy:   string(p.EvaluatedBy),
	}
}

// ArchivedDay describes one archived day object.
type ArchivedDay struct {
	Day          string    `json:"day"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// PredictionArchiver writes the predictions evaluated on one reference-zone
// day to a single JSONL object. A day is written once; later calls for the
// same day are no-ops. Rows are never deleted from the primary store here.
type PredictionArchiver struct {
	source   EvaluatedSource
	writer   domain.BlobWriter
	reader   domain.BlobReader
	audit    domain.AuditStore
	prefix   string
	partSize int64
	metrics  *metrics.Manager
	logger   *slog.Logger
}

// NewArchiver creates a PredictionArchiver writing under prefix. audit may be
// nil.
func NewArchiver(
	source EvaluatedSource,
	writer domain.BlobWriter,
	reader domain.BlobReader,
	audit domain.AuditStore,
	prefix string,
	m *metrics.Manager,
	logger *slog.Logger,
) *PredictionArchiver {
	return &PredictionArchiver{
		source:   source,
		writer:   writer,
		reader:   reader,
		audit:    audit,
		prefix:   strings.Trim(prefix, "/"),
		partSize: minPartSize,
		metrics:  m,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

// DayPath returns the object key of day (YYYY-MM-DD).
func (a *PredictionArchiver) DayPath(day string) string {
	return path.Join(a.prefix, day+".jsonl")
}

// ArchiveDay implements domain.Archiver. dayStart must be local midnight in
// the reference zone; the day ends at the next local midnight, so DST days
// are 23 or 25 hours long.
func (a *PredictionArchiver) ArchiveDay(ctx context.Context, dayStart time.Time) (int, error) {
	day := dayStart.Format(dayLayout)
	key := a.DayPath(day)

	exists, err := a.reader.Exists(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s: %w", day, err)
	}
	if exists {
		return 0, nil
	}

	dayEnd := dayStart.AddDate(0, 0, 1)
	preds, err := a.source.ListEvaluated(ctx, dayStart, dayEnd)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s query: %w", day, err)
	}
	if len(preds) == 0 {
		return 0, nil
	}

	records := make([]archiveRecord, len(preds))
	for i, p := range preds {
		records[i] = toRecord(p)
	}
	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", day, err)
	}

	if mw, ok := a.writer.(multipartWriter); ok && int64(len(buf)) > a.partSize {
		err = mw.PutMultipart(ctx, key, bytes.NewReader(buf), contentType, a.partSize)
	} else {
		err = a.writer.Put(ctx, key, bytes.NewReader(buf), contentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", day, err)
	}

	n := len(records)
	a.metrics.RecordsArchived(n)
	a.logger.InfoContext(ctx, "archiver: day archived",
		slog.String("day", day),
		slog.String("path", key),
		slog.Int("records", n),
		slog.Int("bytes", len(buf)),
	)
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.day", map[string]any{
			"day": day, "path": key, "count": n,
		}); err != nil {
			a.logger.WarnContext(ctx, "archiver: audit log failed", slog.String("error", err.Error()))
		}
	}
	return n, nil
}

// Days lists the archived days, oldest first.
func (a *PredictionArchiver) Days(ctx context.Context) ([]ArchivedDay, error) {
	infos, err := a.reader.List(ctx, a.prefix+"/")
	if err != nil {
		return nil, err
	}
	days := make([]ArchivedDay, 0, len(infos))
	for _, info := range infos {
		name := strings.TrimSuffix(path.Base(info.Path), ".jsonl")
		if _, err := time.Parse(dayLayout, name); err != nil {
			continue
		}
		days = append(days, ArchivedDay{
			Day:          name,
			Path:         info.Path,
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Day < days[j].Day })
	return days, nil
}

// Open returns the JSONL body of one archived day. The caller closes it.
func (a *PredictionArchiver) Open(ctx context.Context, day string) (io.ReadCloser, error) {
	if _, err := time.Parse(dayLayout, day); err != nil {
		return nil, fmt.Errorf("%w: day must be YYYY-MM-DD", domain.ErrNotFound)
	}
	return a.reader.Get(ctx, a.DayPath(day))
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*PredictionArchiver)(nil)
