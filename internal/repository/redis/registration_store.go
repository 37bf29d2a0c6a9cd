package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"registration-service/internal/client"
	"registration-service/internal/model"
	"registration-service/internal/repository"
	"registration-service/internal/util"
)

const (
	registrationPrefix      = "registration:"
	registrationIndexPrefix = "registrations:"
)

// RegistrationStore keeps each attempt in a hash and indexes it by msisdn
// and source ip in sorted sets scored by creation time in microseconds.
type RegistrationStore struct {
	client *client.RedisClient
	sealer repository.Sealer
	clock  clock.Clock
}

func NewRegistrationStore(client *client.RedisClient, sealer repository.Sealer, clk clock.Clock) *RegistrationStore {
	if clk == nil {
		clk = clock.New()
	}
	return &RegistrationStore{client: client, sealer: sealer, clock: clk}
}

func registrationKey(id string) string {
	return registrationPrefix + id
}

func indexKey(field repository.Field, value string) string {
	return registrationIndexPrefix + string(field) + ":" + value
}

func (s *RegistrationStore) Create(ctx context.Context, r *model.Registration) error {
	if err := repository.ValidateForCreate(r); err != nil {
		return err
	}

	code, err := s.seal(ctx, r.Code)
	if err != nil {
		return err
	}

	r.CreatedAt = s.clock.Now().UTC().Truncate(time.Microsecond)
	score := float64(r.CreatedAt.UnixMicro())

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, registrationKey(r.ID),
		"msisdn", r.MSISDN,
		"code", code,
		"created_at", strconv.FormatInt(r.CreatedAt.UnixMicro(), 10),
		"source_ip", r.SourceIP,
		"status", string(r.Status),
		"sms_sent", strconv.FormatBool(r.SMSSent),
	)
	pipe.ZAdd(ctx, indexKey(repository.FieldMSISDN, r.MSISDN), redis.Z{Score: score, Member: r.ID})
	if r.SourceIP != "" {
		pipe.ZAdd(ctx, indexKey(repository.FieldSourceIP, r.SourceIP), redis.Z{Score: score, Member: r.ID})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to store registration",
			util.RegistrationID(r.ID),
			zap.Error(err))
		return fmt.Errorf("failed to store registration: %w", err)
	}

	return nil
}

func (s *RegistrationStore) Query(ctx context.Context, f repository.Filter) ([]*model.Registration, error) {
	if f.Field != repository.FieldMSISDN && f.Field != repository.FieldSourceIP {
		return nil, fmt.Errorf("%w: %s", repository.ErrUnsupportedField, f.Field)
	}

	var count int64
	if f.Status == "" && f.Limit > 0 {
		count = int64(f.Limit)
	}

	minScore := "(" + strconv.FormatInt(f.Since.UnixMicro(), 10)
	ids, err := s.client.ZRevRangeByScore(ctx, indexKey(f.Field, f.Value), minScore, count)
	if err != nil {
		return nil, fmt.Errorf("failed to query registration index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, registrationKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to load registrations: %w", err)
	}

	out := make([]*model.Registration, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			util.Warn("Registration index points to missing record", util.RegistrationID(ids[i]))
			continue
		}
		r, err := s.decode(ctx, ids[i], fields)
		if err != nil {
			return nil, err
		}
		if !f.Matches(r) {
			continue
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}

	return out, nil
}

func (s *RegistrationStore) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

func (s *RegistrationStore) decode(ctx context.Context, id string, fields map[string]string) (*model.Registration, error) {
	micros, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at for registration %s: %w", id, err)
	}
	code, err := s.open(ctx, fields["code"])
	if err != nil {
		return nil, err
	}
	smsSent, _ := strconv.ParseBool(fields["sms_sent"])

	return &model.Registration{
		ID:        id,
		MSISDN:    fields["msisdn"],
		Code:      code,
		CreatedAt: time.UnixMicro(micros).UTC(),
		SourceIP:  fields["source_ip"],
		Status:    model.RegistrationStatus(fields["status"]),
		SMSSent:   smsSent,
	}, nil
}

func (s *RegistrationStore) seal(ctx context.Context, code string) (string, error) {
	if s.sealer == nil {
		return code, nil
	}
	sealed, err := s.sealer.Seal(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to seal code: %w", err)
	}
	return sealed, nil
}

func (s *RegistrationStore) open(ctx context.Context, stored string) (string, error) {
	if s.sealer == nil {
		return stored, nil
	}
	code, err := s.sealer.Open(ctx, stored)
	if err != nil {
		return "", fmt.Errorf("failed to open code: %w", err)
	}
	return code, nil
}
