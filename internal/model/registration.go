package model

import "time"

type RegistrationStatus string

const (
	StatusPending   RegistrationStatus = "pending"
	StatusIncorrect RegistrationStatus = "incorrect"
)

// Registration is one persisted registration attempt. Records are append-only.
type Registration struct {
	ID        string             `json:"registration_id" db:"registration_id"`
	MSISDN    string             `json:"msisdn" db:"msisdn"`
	Code      string             `json:"code" db:"code"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
	SourceIP  string             `json:"source_ip" db:"source_ip"`
	Status    RegistrationStatus `json:"status" db:"status"`
	SMSSent   bool               `json:"sms_sent" db:"sms_sent"`
}

// SMSRequest is the payload published on the delivery channel.
type SMSRequest struct {
	RegistrationID string `json:"registration_id"`
	MSISDN         string `json:"msisdn"`
	Code           string `json:"code"`
	Lang           string `json:"lang"`
}
