package handler

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"registration-service/internal/i18n"
	"registration-service/internal/service"
	"registration-service/internal/util"
)

const (
	statusOK     = "ok"
	statusFailed = "failed"

	msgInvalidMethod   = "Invalid method"
	msgInvalidData     = "Invalid data"
	msgInvalidLanguage = "Set lang parameter to pl or en"

	maxBodyBytes = 1 << 20
)

var registerValidate = validator.New()

// Registrar runs a registration attempt.
type Registrar interface {
	Register(ctx context.Context, req *service.RegisterRequest) (*service.RegisterResult, error)
}

// RegisterRequest is the JSON body of POST /register.
type RegisterRequest struct {
	MSISDN  string `json:"msisdn" validate:"required"`
	Lang    string `json:"lang" validate:"required,oneof=pl en"`
	SendSMS *bool  `json:"send_sms"`
}

// Response is the body of every /register reply.
type Response struct {
	Status         string `json:"status"`
	RegistrationID string `json:"registration_id,omitempty"`
	Code           string `json:"code,omitempty"`
	Message        string `json:"message,omitempty"`
}

// RegistrationHandler handles HTTP requests for phone number registration
type RegistrationHandler struct {
	registrar Registrar
	messages  *i18n.Catalog
	logger    *zap.Logger
}

func NewRegistrationHandler(registrar Registrar, messages *i18n.Catalog, logger *zap.Logger) *RegistrationHandler {
	if messages == nil {
		messages = i18n.Default()
	}
	if logger == nil {
		logger = util.Component("http")
	}
	return &RegistrationHandler{
		registrar: registrar,
		messages:  messages,
		logger:    logger,
	}
}

// RegisterRoutes mounts /register on router. Every method reaches the
// handler so that the method check answers with the registration body.
func (h *RegistrationHandler) RegisterRoutes(router chi.Router, middlewares ...func(http.Handler) http.Handler) {
	router.With(middlewares...).HandleFunc("/register", h.Register)
}

// Register handles a registration attempt
func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	if r.Method != http.MethodPost {
		h.respondWithJSON(w, http.StatusMethodNotAllowed, failed(msgInvalidMethod))
		return
	}
	if !isJSON(r.Header.Get("Content-Type")) {
		h.respondWithJSON(w, http.StatusUnprocessableEntity, failed(msgInvalidData))
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.Warn("Malformed registration body", util.ErrorField(err))
		h.respondWithJSON(w, http.StatusUnprocessableEntity, failed(decodeMessage(err, req.Lang)))
		return
	}

	if err := registerValidate.Struct(&req); err != nil {
		h.respondWithJSON(w, http.StatusUnprocessableEntity, failed(h.validationMessage(err, req.Lang)))
		return
	}

	sendSMS := true
	if req.SendSMS != nil {
		sendSMS = *req.SendSMS
	}

	result, err := h.registrar.Register(r.Context(), &service.RegisterRequest{
		MSISDN:   req.MSISDN,
		Lang:     req.Lang,
		SourceIP: ClientIP(r),
		SendSMS:  sendSMS,
	})
	if err != nil {
		statusCode := getStatusCode(err)
		h.respondWithError(w, statusCode, err, h.errorMessage(err, req.Lang))
		return
	}

	h.respondWithJSON(w, http.StatusOK, Response{
		Status:         statusOK,
		RegistrationID: result.RegistrationID,
		Code:           result.Code,
	})
	h.logger.Info("Registration handled via HTTP",
		util.RegistrationID(result.RegistrationID),
		util.Bool("sms_queued", result.SMSQueued),
		util.Duration("duration", time.Since(startTime)),
	)
}

// decodeMessage reports a mistyped body as a language error unless lang
// itself decoded to a supported value. The decoder keeps filling fields past
// a type mismatch, so req.Lang is usable here.
func decodeMessage(err error, lang string) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && lang != "pl" && lang != "en" {
		return msgInvalidLanguage
	}
	return msgInvalidData
}

// validationMessage reports a bad language before a bad phone number.
func (h *RegistrationHandler) validationMessage(err error, lang string) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return msgInvalidData
	}
	for _, fe := range verrs {
		if fe.Field() == "Lang" {
			h.logger.Warn("Invalid lang", util.String("lang", util.SanitizeInput(lang)))
			return msgInvalidLanguage
		}
	}
	return h.messages.Message(i18n.InvalidPhoneNumber, lang)
}

func (h *RegistrationHandler) errorMessage(err error, lang string) string {
	switch {
	case errors.Is(err, service.ErrInvalidLanguage):
		return msgInvalidLanguage
	case errors.Is(err, service.ErrInvalidPhoneNumber):
		return h.messages.Message(i18n.InvalidPhoneNumber, lang)
	case errors.Is(err, service.ErrInvalidRequest):
		return msgInvalidData
	case errors.Is(err, service.ErrTooManyInvalidAttempts):
		return h.messages.Message(i18n.RegistrationNotAvailable, lang)
	case errors.Is(err, service.ErrServiceUnavailable):
		return h.messages.Message(i18n.ServiceUnavailable, lang)
	default:
		return h.messages.Message(i18n.InternalError, lang)
	}
}

// getStatusCode determines the appropriate HTTP status code for an error
func getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidLanguage),
		errors.Is(err, service.ErrInvalidPhoneNumber),
		errors.Is(err, service.ErrInvalidRequest):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrTooManyInvalidAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func failed(message string) Response {
	return Response{Status: statusFailed, Message: message}
}

// respondWithJSON sends a JSON response
func (h *RegistrationHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	respondWithJSON(w, statusCode, data, h.logger)
}

// respondWithError logs the internal error and sends only the public message.
func (h *RegistrationHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	log := h.logger.Warn
	if statusCode >= http.StatusInternalServerError {
		log = h.logger.Error
	}
	log("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
	)
	h.respondWithJSON(w, statusCode, failed(message))
}

func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// isJSON accepts application/json and any +json media type.
func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// ClientIP returns the last X-Forwarded-For entry, which is the address the
// closest proxy saw. Without the header it falls back to the peer address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[len(parts)-1]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
