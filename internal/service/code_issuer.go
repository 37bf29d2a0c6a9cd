package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"registration-service/internal/model"
	"registration-service/internal/repository"
)

// CodeIssuer hands out the newest pending code still inside the reuse window,
// or mints a fresh one.
type CodeIssuer struct {
	counter     *WindowCounter
	reuseWindow time.Duration
	length      int
	random      io.Reader
}

func NewCodeIssuer(counter *WindowCounter, reuseWindow time.Duration, length int) *CodeIssuer {
	return &CodeIssuer{
		counter:     counter,
		reuseWindow: reuseWindow,
		length:      length,
		random:      rand.Reader,
	}
}

func (i *CodeIssuer) Issue(ctx context.Context, msisdn string) (string, bool, error) {
	latest, err := i.counter.Latest(ctx, repository.FieldMSISDN, msisdn, i.reuseWindow, model.StatusPending)
	if err != nil {
		return "", false, err
	}
	if latest != nil && latest.Code != "" {
		return latest.Code, true, nil
	}

	code, err := generateCode(i.random, i.length)
	if err != nil {
		return "", false, err
	}
	return code, false, nil
}

// generateCode draws length independent uniform decimal digits.
func generateCode(r io.Reader, length int) (string, error) {
	var sb strings.Builder
	sb.Grow(length)
	ten := big.NewInt(10)
	for n := 0; n < length; n++ {
		d, err := rand.Int(r, ten)
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}
		sb.WriteByte(byte('0' + d.Int64()))
	}
	return sb.String(), nil
}
