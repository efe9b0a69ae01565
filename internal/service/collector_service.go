package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"vocabcue/internal/database"
	"vocabcue/internal/logging"
	"vocabcue/internal/models"
	"vocabcue/internal/repository"
	"vocabcue/internal/validation"
)

// ReceiptSender delivers the consent confirmation email
type ReceiptSender interface {
	IsEnabled() bool
	SendConsentReceipt(ctx context.Context, consent models.Consent) error
}

// CollectorService validates and stores what the experiment server posts
type CollectorService struct {
	consents  *repository.ConsentRepository
	responses *repository.ResponseRepository
	receipts  ReceiptSender
	logger    *zap.Logger
}

// NewCollectorService creates a collector service. receipts may be nil.
func NewCollectorService(db *database.DB, receipts ReceiptSender, logger *zap.Logger) *CollectorService {
	return &CollectorService{
		consents:  repository.NewConsentRepository(db),
		responses: repository.NewResponseRepository(db),
		receipts:  receipts,
		logger:    logging.OrNop(logger),
	}
}

// RecordConsent stores a consent. A repeated post for the same participant returns the stored row.
func (s *CollectorService) RecordConsent(ctx context.Context, consent models.Consent) (int64, error) {
	consent.UserID = strings.TrimSpace(consent.UserID)
	consent.Name = strings.TrimSpace(consent.Name)
	consent.Email = strings.TrimSpace(consent.Email)
	if err := validation.ValidateConsent(consent); err != nil {
		return 0, err
	}

	existing, err := s.consents.GetByUserID(ctx, consent.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to look up consent: %w", err)
	}
	if existing != nil {
		s.logger.Debug("Duplicate consent ignored", zap.String("user_id", consent.UserID))
		return existing.ID, nil
	}

	id, err := s.consents.Create(ctx, consent)
	if errors.Is(err, repository.ErrDuplicateConsent) {
		// lost a race with a concurrent post for the same participant
		existing, err = s.consents.GetByUserID(ctx, consent.UserID)
		if err != nil || existing == nil {
			return 0, fmt.Errorf("failed to look up consent: %w", errors.Join(err, repository.ErrDuplicateConsent))
		}
		s.logger.Debug("Duplicate consent ignored", zap.String("user_id", consent.UserID))
		return existing.ID, nil
	}
	if err != nil {
		return 0, err
	}
	s.logger.Info("Consent recorded", zap.Int64("id", id), zap.String("user_id", consent.UserID), zap.String("group", consent.Group))

	s.sendReceipt(ctx, id, consent)
	return id, nil
}

// sendReceipt is best effort. A failed email leaves receipt_sent false for a later resend.
func (s *CollectorService) sendReceipt(ctx context.Context, id int64, consent models.Consent) {
	if s.receipts == nil || !s.receipts.IsEnabled() {
		return
	}
	if err := s.receipts.SendConsentReceipt(ctx, consent); err != nil {
		s.logger.Warn("Consent receipt not sent", zap.String("user_id", consent.UserID), zap.Error(err))
		return
	}
	if err := s.consents.MarkReceiptSent(ctx, id); err != nil {
		s.logger.Warn("Failed to flag receipt", zap.Int64("id", id), zap.Error(err))
	}
}

// ResendReceipts retries every receipt that has not gone out and returns how many were sent
func (s *CollectorService) ResendReceipts(ctx context.Context) (int, error) {
	if s.receipts == nil || !s.receipts.IsEnabled() {
		return 0, nil
	}
	all, err := s.consents.List(ctx)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, c := range all {
		if c.ReceiptSent {
			continue
		}
		if err := s.receipts.SendConsentReceipt(ctx, c.Consent); err != nil {
			s.logger.Warn("Consent receipt not sent", zap.String("user_id", c.UserID), zap.Error(err))
			continue
		}
		if err := s.consents.MarkReceiptSent(ctx, c.ID); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// RecordResponse stores one response event
func (s *CollectorService) RecordResponse(ctx context.Context, event models.ResponseEvent) (int64, error) {
	event.UserID = strings.TrimSpace(event.UserID)
	if err := validation.ValidateResponse(event); err != nil {
		return 0, err
	}

	id, err := s.responses.Create(ctx, event)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("Response recorded",
		zap.Int64("id", id),
		zap.String("user_id", event.UserID),
		zap.String("page_type", event.PageType),
		zap.String("word", event.Word),
		zap.Int("round", event.Round))
	return id, nil
}

// Stats returns stored response counts keyed by page type
func (s *CollectorService) Stats(ctx context.Context) (map[string]int, error) {
	return s.responses.CountByPageType(ctx)
}
