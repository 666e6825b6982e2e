package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/ports"
)

const defaultBatchSize = 500

var messageTimestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
}

type LoadRecordsUseCase struct {
	lake   ports.Lake
	store  ports.RecordStore
	logger *slog.Logger
	now    func() time.Time
}

func NewLoadRecordsUseCase(lake ports.Lake, store ports.RecordStore, logger *slog.Logger) *LoadRecordsUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoadRecordsUseCase{
		lake:   lake,
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Load moves messages and then attachments from the lake into the store.
// Messages go first so attachment owners exist when attachments are checked.
func (uc *LoadRecordsUseCase) Load(ctx context.Context, opts domain.LoadOptions) (domain.LoadReport, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	var report domain.LoadReport

	if err := uc.loadMessages(ctx, opts, &report); err != nil {
		return report, fmt.Errorf("load messages: %w", err)
	}
	if err := uc.loadAttachments(ctx, opts, &report); err != nil {
		return report, fmt.Errorf("load attachments: %w", err)
	}

	uc.logger.Info("load_finished",
		"messages_inserted", report.MessagesInserted,
		"messages_duplicate", report.MessagesDuplicate(),
		"messages_skipped", report.MessagesSkipped,
		"attachments_inserted", report.AttachmentsInserted,
		"attachments_duplicate", report.AttachmentsDuplicate(),
		"attachments_rejected", report.AttachmentsRejected,
		"attachments_orphaned", report.AttachmentsOrphaned,
	)
	return report, nil
}

func (uc *LoadRecordsUseCase) loadMessages(ctx context.Context, opts domain.LoadOptions, report *domain.LoadReport) error {
	batch := make([]domain.SourceRecord, 0, opts.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		inserted, err := uc.store.WriteSourceRecords(ctx, batch)
		if err != nil {
			return err
		}
		report.MessagesInserted += inserted
		batch = batch[:0]
		return nil
	}

	err := uc.lake.Walk(ctx, opts.MessagesDir, func(entry domain.LakeEntry) error {
		if !strings.HasSuffix(entry.Name, ".json") {
			return nil
		}
		report.MessagesSeen++

		raw, err := uc.lake.Read(ctx, entry)
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Location, err)
		}
		record, defaulted, err := uc.decodeMessage(raw, entry)
		if err != nil {
			report.MessagesSkipped++
			uc.logger.Warn("message_skipped", "file", entry.Location, "error", err)
			return nil
		}
		if defaulted {
			report.TimestampsDefaulted++
			uc.logger.Warn("message_timestamp_defaulted", "file", entry.Location, "message_id", record.NaturalKey)
		}

		batch = append(batch, record)
		if len(batch) >= opts.BatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}

func (uc *LoadRecordsUseCase) decodeMessage(raw []byte, entry domain.LakeEntry) (domain.SourceRecord, bool, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var fields map[string]any
	if err := decoder.Decode(&fields); err != nil {
		return domain.SourceRecord{}, false, domain.WrapError(domain.ErrInvalidInput, "decode message", err)
	}

	key, ok := messageKey(fields["id"])
	if !ok {
		key, ok = messageKey(fields["message_id"])
	}
	if !ok {
		return domain.SourceRecord{}, false, domain.WrapError(domain.ErrInvalidInput, "decode message", errors.New("no message id"))
	}

	var payload bytes.Buffer
	if err := json.Compact(&payload, raw); err != nil {
		return domain.SourceRecord{}, false, domain.WrapError(domain.ErrInvalidInput, "compact message", err)
	}

	capturedAt, ok := messageTimestamp(fields["date"])
	if !ok {
		capturedAt = uc.now()
	}

	return domain.SourceRecord{
		NaturalKey: key,
		Channel:    entry.Channel,
		Payload:    json.RawMessage(payload.Bytes()),
		CapturedAt: capturedAt,
	}, !ok, nil
}

func messageKey(value any) (int64, bool) {
	switch v := value.(type) {
	case json.Number:
		key, err := v.Int64()
		if err != nil || key <= 0 {
			return 0, false
		}
		return key, true
	case string:
		key, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || key <= 0 {
			return 0, false
		}
		return key, true
	default:
		return 0, false
	}
}

func messageTimestamp(value any) (time.Time, bool) {
	raw, ok := value.(string)
	if !ok {
		return time.Time{}, false
	}
	raw = strings.TrimSpace(raw)
	for _, layout := range messageTimestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func (uc *LoadRecordsUseCase) loadAttachments(ctx context.Context, opts domain.LoadOptions, report *domain.LoadReport) error {
	batch := make([]domain.Attachment, 0, opts.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		owned, err := uc.withExistingOwners(ctx, batch, report)
		if err != nil {
			return err
		}
		batch = batch[:0]
		if len(owned) == 0 {
			return nil
		}
		inserted, err := uc.store.WriteAttachments(ctx, owned)
		if err != nil {
			return err
		}
		report.AttachmentsInserted += inserted
		return nil
	}

	err := uc.lake.Walk(ctx, opts.ImagesDir, func(entry domain.LakeEntry) error {
		report.AttachmentsSeen++

		name, err := domain.ParseAttachmentName(entry.Name)
		if err != nil {
			report.AttachmentsRejected++
			uc.logger.Warn("attachment_rejected", "file", entry.Location, "error", err)
			return nil
		}

		batch = append(batch, domain.Attachment{
			OwnerKey:   name.OwnerKey,
			Channel:    entry.Channel,
			Location:   entry.Location,
			CapturedAt: entry.Date,
		})
		if len(batch) >= opts.BatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}

// withExistingOwners drops attachments whose owner record is not in the store.
func (uc *LoadRecordsUseCase) withExistingOwners(ctx context.Context, batch []domain.Attachment, report *domain.LoadReport) ([]domain.Attachment, error) {
	keys := make([]int64, 0, len(batch))
	seen := make(map[int64]bool, len(batch))
	for _, a := range batch {
		if !seen[a.OwnerKey] {
			seen[a.OwnerKey] = true
			keys = append(keys, a.OwnerKey)
		}
	}

	existing, err := uc.store.ExistingSourceKeys(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("check attachment owners: %w", err)
	}

	owned := make([]domain.Attachment, 0, len(batch))
	for _, a := range batch {
		if !existing[a.OwnerKey] {
			report.AttachmentsOrphaned++
			violation := domain.WrapError(domain.ErrReferentialViolation, "check attachment owner", fmt.Errorf("message %d not loaded", a.OwnerKey))
			uc.logger.Warn("attachment_orphaned", "file", a.Location, "message_id", a.OwnerKey, "error", violation)
			continue
		}
		owned = append(owned, a)
	}
	return owned, nil
}
