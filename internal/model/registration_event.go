package model

import "time"

type RegistrationEventType string

const (
	EventAdmitted         RegistrationEventType = "admitted"
	EventRejectedPhone    RegistrationEventType = "rejected_phone"
	EventRejectedAbuse    RegistrationEventType = "rejected_abuse"
	EventSMSPublished     RegistrationEventType = "sms_published"
	EventSMSSuppressed    RegistrationEventType = "sms_suppressed"
	EventSMSPublishFailed RegistrationEventType = "sms_publish_failed"
	EventCodeDisclosed    RegistrationEventType = "code_disclosed"
)

type RegistrationEvent struct {
	EventID        string                `json:"event_id" db:"event_id"`
	EventBucket    int                   `json:"event_bucket" db:"event_bucket"`
	EventDate      string                `json:"event_date" db:"event_date"`
	EventTime      time.Time             `json:"event_time" db:"event_time"`
	EventType      RegistrationEventType `json:"event_type" db:"event_type"`
	RegistrationID string                `json:"registration_id,omitempty" db:"registration_id"`
	MSISDN         string                `json:"msisdn,omitempty" db:"msisdn"`
	SourceIP       string                `json:"source_ip,omitempty" db:"source_ip"`
	Lang           string                `json:"lang,omitempty" db:"lang"`
	CodeReused     bool                  `json:"code_reused" db:"code_reused"`
	Details        string                `json:"details,omitempty" db:"details"`
}
