package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"registration-service/internal/i18n"
	"registration-service/internal/model"
	"registration-service/internal/util"
)

var ErrInvalidPayload = errors.New("invalid sms request payload")

// Dispatcher turns queued registration SMS requests into text messages.
type Dispatcher struct {
	sender   Sender
	messages *i18n.Catalog
	logger   *zap.Logger
}

func NewDispatcher(sender Sender, messages *i18n.Catalog, logger *zap.Logger) *Dispatcher {
	if messages == nil {
		messages = i18n.Default()
	}
	if logger == nil {
		logger = util.Component("sms")
	}
	return &Dispatcher{sender: sender, messages: messages, logger: logger}
}

// Handle decodes one payload and sends the localized code message.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte) error {
	var req model.SMSRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if req.MSISDN == "" || req.Code == "" {
		return fmt.Errorf("%w: missing msisdn or code", ErrInvalidPayload)
	}
	lang := req.Lang
	if !i18n.Supported(lang) {
		lang = i18n.DefaultLang
	}

	body := d.messages.Render(i18n.SMSBody, lang, map[string]string{"code": req.Code})
	if err := d.sender.Send(ctx, req.MSISDN, body); err != nil {
		d.logger.Error("Failed to send registration SMS",
			util.RegistrationID(req.RegistrationID),
			util.MSISDN(req.MSISDN),
			util.ErrorField(err))
		return err
	}

	d.logger.Info("Registration SMS sent",
		util.RegistrationID(req.RegistrationID),
		util.MSISDN(req.MSISDN),
		util.String("lang", lang))
	return nil
}
