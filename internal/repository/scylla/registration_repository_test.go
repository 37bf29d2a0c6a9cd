package scylla

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registration-service/internal/model"
	"registration-service/internal/repository"
)

type fakeRows struct {
	rows     [][]interface{}
	scanned  int
	closeErr error
	closed   bool
}

func (f *fakeRows) Scan(dest ...interface{}) bool {
	if f.scanned >= len(f.rows) {
		return false
	}
	row := f.rows[f.scanned]
	f.scanned++
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *time.Time:
			*p = row[i].(time.Time)
		case *bool:
			*p = row[i].(bool)
		}
	}
	return true
}

func (f *fakeRows) Close() error {
	f.closed = true
	return f.closeErr
}

type prefixSealer struct {
	openErr error
}

func (prefixSealer) Seal(_ context.Context, plaintext string) (string, error) {
	return "sealed:" + plaintext, nil
}

func (p prefixSealer) Open(_ context.Context, sealed string) (string, error) {
	if p.openErr != nil {
		return "", p.openErr
	}
	return strings.TrimPrefix(sealed, "sealed:"), nil
}

var rowTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))

func row(id, code string, status model.RegistrationStatus, age time.Duration) []interface{} {
	return []interface{}{id, "+48123456789", "sealed:" + code, rowTime.Add(-age), "203.0.113.7", string(status), true}
}

func sampleRows() [][]interface{} {
	return [][]interface{}{
		row("r1", "111111", model.StatusIncorrect, time.Minute),
		row("r2", "222222", model.StatusPending, 2*time.Minute),
		row("r3", "333333", model.StatusIncorrect, 3*time.Minute),
		row("r4", "444444", model.StatusPending, 4*time.Minute),
		row("r5", "555555", model.StatusPending, 5*time.Minute),
	}
}

func TestCollect_FiltersAndLimits(t *testing.T) {
	tests := []struct {
		name    string
		filter  repository.Filter
		want    []string
		scanned int
	}{
		{name: "all rows", filter: repository.Filter{}, want: []string{"r1", "r2", "r3", "r4", "r5"}, scanned: 5},
		{name: "status only", filter: repository.Filter{Status: model.StatusPending}, want: []string{"r2", "r4", "r5"}, scanned: 5},
		{name: "limit without status", filter: repository.Filter{Limit: 2}, want: []string{"r1", "r2"}, scanned: 2},
		{name: "limit with status", filter: repository.Filter{Status: model.StatusPending, Limit: 1}, want: []string{"r2"}, scanned: 2},
		{name: "incorrect only", filter: repository.Filter{Status: model.StatusIncorrect}, want: []string{"r1", "r3"}, scanned: 5},
		{name: "empty result", filter: repository.Filter{Status: model.RegistrationStatus("verified")}, want: nil, scanned: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewRegistrationRepository(nil, prefixSealer{}, clock.NewMock())
			rows := &fakeRows{rows: sampleRows()}

			got, err := repo.collect(context.Background(), rows, tt.filter)
			require.NoError(t, err)
			assert.True(t, rows.closed)
			assert.Equal(t, tt.scanned, rows.scanned)

			var ids []string
			for _, reg := range got {
				ids = append(ids, reg.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestCollect_OpensCodesAndNormalizesTime(t *testing.T) {
	repo := NewRegistrationRepository(nil, prefixSealer{}, clock.NewMock())
	rows := &fakeRows{rows: sampleRows()[:1]}

	got, err := repo.collect(context.Background(), rows, repository.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "111111", got[0].Code)
	assert.Equal(t, time.UTC, got[0].CreatedAt.Location())
	assert.True(t, got[0].CreatedAt.Equal(rowTime.Add(-time.Minute)))
	assert.Equal(t, model.StatusIncorrect, got[0].Status)
	assert.True(t, got[0].SMSSent)
}

func TestCollect_Errors(t *testing.T) {
	closeErr := errors.New("read timeout")
	repo := NewRegistrationRepository(nil, prefixSealer{}, clock.NewMock())
	_, err := repo.collect(context.Background(), &fakeRows{rows: sampleRows(), closeErr: closeErr}, repository.Filter{})
	require.ErrorIs(t, err, closeErr)

	openErr := errors.New("bad ciphertext")
	repo = NewRegistrationRepository(nil, prefixSealer{openErr: openErr}, clock.NewMock())
	_, err = repo.collect(context.Background(), &fakeRows{rows: sampleRows()}, repository.Filter{})
	require.ErrorIs(t, err, openErr)
}

func TestPageSize(t *testing.T) {
	assert.Equal(t, 0, pageSize(repository.Filter{}))
	assert.Equal(t, 3, pageSize(repository.Filter{Limit: 3}))
	assert.Equal(t, 0, pageSize(repository.Filter{Limit: 3, Status: model.StatusPending}))
}

func TestRowValues_SealsCodeAndStampsTime(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 5, 1, 10, 0, 0, 123456789, time.UTC))
	repo := NewRegistrationRepository(nil, prefixSealer{}, clk)

	reg := &model.Registration{ID: "r1", MSISDN: "+48123456789", Code: "123456", SourceIP: "203.0.113.7", Status: model.StatusPending}
	values, err := repo.rowValues(context.Background(), reg)
	require.NoError(t, err)

	want := time.Date(2024, 5, 1, 10, 0, 0, 123000000, time.UTC)
	assert.Equal(t, []interface{}{"r1", "+48123456789", "sealed:123456", want, "203.0.113.7", "pending", false}, values)
	assert.Equal(t, "123456", reg.Code)
	assert.True(t, reg.CreatedAt.Equal(want))
	assert.Len(t, values, len(strings.Split(registrationColumns, ",")))
}

func TestQuery_UnsupportedField(t *testing.T) {
	repo := NewRegistrationRepository(nil, nil, nil)
	_, err := repo.Query(context.Background(), repository.Filter{Field: "code"})
	require.ErrorIs(t, err, repository.ErrUnsupportedField)
}

func TestCreate_RejectsInvalidRecord(t *testing.T) {
	repo := NewRegistrationRepository(nil, prefixSealer{}, clock.NewMock())
	err := repo.Create(context.Background(), &model.Registration{})
	require.ErrorIs(t, err, repository.ErrInvalidRecord)
}
