package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"registration-service/internal/config"
	"registration-service/internal/i18n"
	"registration-service/internal/model"
	"registration-service/internal/repository"
	"registration-service/internal/util"
)

// Publisher delivers a payload to the SMS delivery channel.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// EventEmitter receives registration decisions for auditing. Implementations
// must not block the caller.
type EventEmitter interface {
	Emit(ctx context.Context, event *model.RegistrationEvent)
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *model.RegistrationEvent) {}

type RegisterRequest struct {
	MSISDN   string
	Lang     string
	SourceIP string
	SendSMS  bool
}

type RegisterResult struct {
	RegistrationID string
	// Code is set only when the code is disclosed in the response.
	Code       string
	CodeReused bool
	SMSQueued  bool
}

// RegistrationService runs one registration attempt end to end: validate,
// admit, issue, persist, dispatch.
type RegistrationService struct {
	store     repository.RegistrationStore
	gate      *AbuseGate
	issuer    *CodeIssuer
	throttle  *DeliveryThrottle
	publisher Publisher
	events    EventEmitter
	cfg       config.RegistrationConfig
	random    io.Reader
	logger    *zap.Logger
}

func NewRegistrationService(
	store repository.RegistrationStore,
	publisher Publisher,
	events EventEmitter,
	clk clock.Clock,
	cfg config.RegistrationConfig,
	logger *zap.Logger,
) *RegistrationService {
	if events == nil {
		events = noopEmitter{}
	}
	if logger == nil {
		logger = util.Component("registration")
	}
	counter := NewWindowCounter(store, clk, cfg.StoreTimeout)
	return &RegistrationService{
		store:     store,
		gate:      NewAbuseGate(counter, cfg, logger),
		issuer:    NewCodeIssuer(counter, cfg.CodeReuseWindow, cfg.CodeLength),
		throttle:  NewDeliveryThrottle(counter, cfg, logger),
		publisher: publisher,
		events:    events,
		cfg:       cfg,
		random:    rand.Reader,
		logger:    logger,
	}
}

func (s *RegistrationService) Register(ctx context.Context, req *RegisterRequest) (*RegisterResult, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}
	if !i18n.Supported(req.Lang) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLanguage, req.Lang)
	}

	msisdn, err := NormalizeMSISDN(req.MSISDN)
	if err != nil {
		s.events.Emit(ctx, &model.RegistrationEvent{
			EventType: model.EventRejectedPhone,
			SourceIP:  req.SourceIP,
			Lang:      req.Lang,
		})
		return nil, err
	}

	if err := s.gate.Admit(ctx, req.SourceIP, msisdn); err != nil {
		if errors.Is(err, ErrTooManyInvalidAttempts) {
			s.events.Emit(ctx, &model.RegistrationEvent{
				EventType: model.EventRejectedAbuse,
				MSISDN:    msisdn,
				SourceIP:  req.SourceIP,
				Lang:      req.Lang,
				Details:   err.Error(),
			})
		}
		return nil, err
	}

	code, reused, err := s.issuer.Issue(ctx, msisdn)
	if err != nil {
		return nil, err
	}

	id, err := newRegistrationID(s.random)
	if err != nil {
		return nil, err
	}

	record := &model.Registration{
		ID:       id,
		MSISDN:   msisdn,
		Code:     code,
		SourceIP: req.SourceIP,
		Status:   model.StatusPending,
		SMSSent:  false,
	}
	if err := s.persist(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("Registration accepted",
		util.RegistrationID(id),
		util.MSISDN(msisdn),
		util.Bool("code_reused", reused))
	s.emit(ctx, model.EventAdmitted, record, req.Lang, reused, "")

	result := &RegisterResult{RegistrationID: id, CodeReused: reused}
	s.dispatch(ctx, req, record, reused, result)
	return result, nil
}

func (s *RegistrationService) persist(ctx context.Context, record *model.Registration) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if err := s.store.Create(ctx, record); err != nil {
		s.logger.Error("Failed to persist registration",
			util.RegistrationID(record.ID),
			util.ErrorField(err))
		return storeError("create registration", err, ErrPersistenceFailed)
	}
	return nil
}

// dispatch either discloses the code or sends it by SMS when the delivery
// throttle allows. Failures here never fail the registration.
func (s *RegistrationService) dispatch(ctx context.Context, req *RegisterRequest, record *model.Registration, reused bool, result *RegisterResult) {
	if !req.SendSMS && s.cfg.CodeDisclosure {
		result.Code = record.Code
		s.emit(ctx, model.EventCodeDisclosed, record, req.Lang, reused, "")
		return
	}

	send, err := s.throttle.ShouldSend(ctx, record.MSISDN)
	if err != nil {
		s.logger.Warn("Delivery throttle unavailable, not sending SMS",
			util.RegistrationID(record.ID),
			util.ErrorField(err))
		s.emit(ctx, model.EventSMSSuppressed, record, req.Lang, reused, err.Error())
		return
	}
	if !send {
		s.emit(ctx, model.EventSMSSuppressed, record, req.Lang, reused, "resend limit reached")
		return
	}

	payload, err := json.Marshal(model.SMSRequest{
		RegistrationID: record.ID,
		MSISDN:         record.MSISDN,
		Code:           record.Code,
		Lang:           req.Lang,
	})
	if err != nil {
		s.logger.Error("Failed to encode SMS request", util.ErrorField(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PublishTimeout)
	defer cancel()

	start := time.Now()
	if err := s.publisher.Publish(pubCtx, s.cfg.SMSTopic, record.MSISDN, payload); err != nil {
		s.logger.Error("Failed to publish SMS request",
			util.RegistrationID(record.ID),
			util.String("topic", s.cfg.SMSTopic),
			util.Duration("elapsed", time.Since(start)),
			util.ErrorField(err))
		s.emit(ctx, model.EventSMSPublishFailed, record, req.Lang, reused, err.Error())
		return
	}

	result.SMSQueued = true
	s.emit(ctx, model.EventSMSPublished, record, req.Lang, reused, "")
}

func (s *RegistrationService) emit(ctx context.Context, t model.RegistrationEventType, r *model.Registration, lang string, reused bool, details string) {
	s.events.Emit(ctx, &model.RegistrationEvent{
		EventType:      t,
		RegistrationID: r.ID,
		MSISDN:         r.MSISDN,
		SourceIP:       r.SourceIP,
		Lang:           lang,
		CodeReused:     reused,
		Details:        details,
	})
}

// HealthCheck reports whether the store answers.
func (s *RegistrationService) HealthCheck(ctx context.Context) error {
	return s.store.HealthCheck(ctx)
}

// newRegistrationID returns 16 random bytes as 32 lowercase hex characters.
func newRegistrationID(r io.Reader) (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("failed to generate registration id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
