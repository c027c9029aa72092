package transcript

import (
	"context"
	"fmt"
	"time"

	"claims-intake/internal/common/airtable"
	commonerrors "claims-intake/internal/common/errors"
	"claims-intake/internal/common/logger"
	"claims-intake/internal/common/metrics"
	"claims-intake/internal/models"
)

// Persistence modes for the spreadsheet store.
const (
	ModeInsert = "insert"
	ModePatch  = "patch"
)

// Fetcher retrieves a raw conversation payload.
type Fetcher interface {
	GetConversation(ctx context.Context, conversationID string) ([]byte, error)
}

// SheetStore is the spreadsheet row interface. Satisfied by the airtable
// client.
type SheetStore interface {
	CreateRecord(ctx context.Context, fields map[string]interface{}) (*airtable.Record, error)
	ListRecords(ctx context.Context, filterByFormula string) ([]airtable.Record, error)
	UpdateRecord(ctx context.Context, recordID string, fields map[string]interface{}) error
}

// Indexer mirrors delivered transcripts into the search backend.
type Indexer interface {
	Index(ctx context.Context, t models.Transcript) error
}

// Archiver appends delivered transcripts to the local archive.
type Archiver interface {
	Append(t models.Transcript) error
}

// Options control how transcripts map onto spreadsheet columns.
type Options struct {
	Mode            string
	ClaimField      string
	TranscriptField string
}

// Service fetches a finished conversation's transcript and persists it to
// the spreadsheet store, with search indexing and archival on the side.
type Service struct {
	logger  logger.Logger
	fetcher Fetcher
	sheet   SheetStore
	indexer Indexer
	archive Archiver
	opts    Options
	now     func() time.Time
}

// NewService wires transcript delivery. indexer and archive may be nil.
func NewService(log logger.Logger, fetcher Fetcher, sheet SheetStore, indexer Indexer, archive Archiver, opts Options) *Service {
	if opts.Mode == "" {
		opts.Mode = ModeInsert
	}
	if opts.ClaimField == "" {
		opts.ClaimField = "Claim ID"
	}
	if opts.TranscriptField == "" {
		opts.TranscriptField = "Transcript"
	}
	return &Service{
		logger:  log,
		fetcher: fetcher,
		sheet:   sheet,
		indexer: indexer,
		archive: archive,
		opts:    opts,
		now:     time.Now,
	}
}

// Delivery is the outcome of a successful transcript delivery. Raw carries
// the upstream conversation payload verbatim for callers that relay it.
type Delivery struct {
	Transcript models.Transcript
	Raw        []byte
}

// Deliver fetches the conversation transcript and writes it through. The
// sheet write is the one step that can fail the delivery; indexing and
// archival are best effort.
func (s *Service) Deliver(ctx context.Context, conversationID, claimID string) (*Delivery, *commonerrors.StandardError) {
	if conversationID == "" {
		metrics.TranscriptDeliveries.WithLabelValues(s.opts.Mode, "rejected").Inc()
		return nil, commonerrors.NewConversationIDMissingError()
	}

	payload, err := s.fetcher.GetConversation(ctx, conversationID)
	if err != nil {
		metrics.TranscriptDeliveries.WithLabelValues(s.opts.Mode, "fetch_failed").Inc()
		return nil, commonerrors.NewTranscriptFetchError(err)
	}

	t := models.Transcript{
		ConversationID: conversationID,
		ClaimID:        claimID,
		Text:           Extract(payload),
		Timestamp:      s.now().UTC(),
	}

	if stdErr := s.persist(ctx, t); stdErr != nil {
		metrics.TranscriptDeliveries.WithLabelValues(s.opts.Mode, "persist_failed").Inc()
		return nil, stdErr
	}

	s.sideEffects(ctx, t)
	metrics.TranscriptDeliveries.WithLabelValues(s.opts.Mode, "delivered").Inc()

	s.logger.WithFields(map[string]interface{}{
		"conversation_id": conversationID,
		"claim_id":        claimID,
		"mode":            s.opts.Mode,
	}).Info("Transcript delivered", nil)

	return &Delivery{Transcript: t, Raw: payload}, nil
}

func (s *Service) persist(ctx context.Context, t models.Transcript) *commonerrors.StandardError {
	switch s.opts.Mode {
	case ModePatch:
		return s.patchRow(ctx, t)
	default:
		return s.insertRow(ctx, t)
	}
}

func (s *Service) insertRow(ctx context.Context, t models.Transcript) *commonerrors.StandardError {
	_, err := s.sheet.CreateRecord(ctx, map[string]interface{}{
		"Conversation ID":      t.ConversationID,
		s.opts.ClaimField:      t.ClaimID,
		s.opts.TranscriptField: t.Text,
		"Timestamp":            t.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		return commonerrors.NewSheetPersistError(err)
	}
	return nil
}

func (s *Service) patchRow(ctx context.Context, t models.Transcript) *commonerrors.StandardError {
	formula := fmt.Sprintf("{%s}='%s'", s.opts.ClaimField, t.ClaimID)

	records, err := s.sheet.ListRecords(ctx, formula)
	if err != nil {
		return commonerrors.NewSheetPersistError(err)
	}
	if len(records) == 0 {
		return commonerrors.NewSheetRowNotFoundError(t.ClaimID)
	}

	err = s.sheet.UpdateRecord(ctx, records[0].ID, map[string]interface{}{
		s.opts.TranscriptField: t.Text,
		"Conversation ID":      t.ConversationID,
		"Timestamp":            t.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		return commonerrors.NewSheetPersistError(err)
	}
	return nil
}

func (s *Service) sideEffects(ctx context.Context, t models.Transcript) {
	if s.indexer != nil {
		if err := s.indexer.Index(ctx, t); err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"conversation_id": t.ConversationID,
			}).Warn("Transcript indexing failed", nil)
		}
	}

	if s.archive != nil {
		if err := s.archive.Append(t); err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"conversation_id": t.ConversationID,
			}).Warn("Transcript archival failed", nil)
		}
	}
}
