package classify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ortelius/storefront-guard/internal/crypt"
	"github.com/ortelius/storefront-guard/internal/secerr"
	"github.com/ortelius/storefront-guard/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	svcOnce sync.Once
	svc     *crypt.Service
)

func cryptService(t *testing.T) *crypt.Service {
	t.Helper()
	svcOnce.Do(func() {
		s, err := crypt.NewService(crypt.Config{Secret: "classification-test-secret"}, nil, nil)
		if err != nil {
			panic(err)
		}
		svc = s
	})
	return svc
}

type failingEncryptor struct{}

func (failingEncryptor) EncryptString(string) (string, error) {
	return "", &secerr.CryptoError{Op: "encrypt"}
}

func (failingEncryptor) Fingerprint(v string) string { return "fp:" + v }

func sampleRecord() map[string]interface{} {
	return map[string]interface{}{
		"email":        "jane@example.com",
		"payment_info": "4111111111111111",
		"personal-id":  "AB123456",
		"nickname":     "jj",
		"order_total":  42.5,
		"address":      nil,
	}
}

func TestProtectRestricted(t *testing.T) {
	svc := cryptService(t)
	e := NewEngine(Config{}, svc, nil, nil, nil)

	in := sampleRecord()
	out, err := e.Protect(in, model.ClassRestricted)
	require.NoError(t, err)

	for _, field := range []string{"email", "payment_info", "personal-id", "nickname"} {
		s, ok := out[field].(string)
		require.True(t, ok, field)
		assert.True(t, crypt.IsEnvelope(s), field)
	}
	assert.Nil(t, out["address"])
	assert.Equal(t, 42.5, out["order_total"], "non-string values pass through")

	plain, err := svc.DecryptString(context.Background(), out["email"].(string))
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", plain)

	// input untouched
	assert.Equal(t, sampleRecord(), in)
}

func TestProtectConfidentialUsesAllowList(t *testing.T) {
	svc := cryptService(t)
	e := NewEngine(Config{}, svc, nil, nil, nil)

	out, err := e.Protect(sampleRecord(), model.ClassConfidential)
	require.NoError(t, err)

	assert.True(t, crypt.IsEnvelope(out["email"].(string)))
	assert.True(t, crypt.IsEnvelope(out["payment_info"].(string)))
	assert.True(t, crypt.IsEnvelope(out["personal-id"].(string)))
	assert.Equal(t, "jj", out["nickname"])
	assert.Equal(t, 42.5, out["order_total"])
}

func TestProtectInternalFingerprintsAllowList(t *testing.T) {
	svc := cryptService(t)
	e := NewEngine(Config{}, svc, nil, nil, nil)

	a, err := e.Protect(sampleRecord(), model.ClassInternal)
	require.NoError(t, err)
	b, err := e.Protect(sampleRecord(), model.ClassInternal)
	require.NoError(t, err)

	assert.Equal(t, svc.Fingerprint("jane@example.com"), a["email"])
	assert.Equal(t, a["email"], b["email"])
	assert.NotEqual(t, "4111111111111111", a["payment_info"])
	assert.Equal(t, "jj", a["nickname"])
}

func TestProtectPublicAndUnknown(t *testing.T) {
	e := NewEngine(Config{}, failingEncryptor{}, nil, nil, nil)

	out, err := e.Protect(sampleRecord(), model.ClassPublic)
	require.NoError(t, err)
	assert.Equal(t, sampleRecord(), out)

	_, err = e.Protect(sampleRecord(), model.DataClassification("SECRET"))
	assert.True(t, errors.Is(err, secerr.ErrValidation))
}

func TestProtectFailsWholeRecordOnEncryptError(t *testing.T) {
	e := NewEngine(Config{}, failingEncryptor{}, nil, nil, nil)

	out, err := e.Protect(sampleRecord(), model.ClassConfidential)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, secerr.ErrCrypto))
}

func TestSensitiveFieldNormalization(t *testing.T) {
	e := NewEngine(Config{SensitiveFields: []string{"loyalty_number"}}, failingEncryptor{}, nil, nil, nil)

	assert.True(t, e.IsSensitive("loyaltyNumber"))
	assert.True(t, e.IsSensitive("LOYALTY-NUMBER"))
	assert.False(t, e.IsSensitive("email"))

	def := NewEngine(Config{}, failingEncryptor{}, nil, nil, nil)
	assert.True(t, def.IsSensitive("payment_info"))
	assert.True(t, def.IsSensitive("paymentInfo"))
}

func TestAnonymize(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	e := NewEngine(Config{}, failingEncryptor{}, nil, nil, nil).WithClock(func() time.Time { return now })

	dob := time.Date(1990, 8, 1, 0, 0, 0, 0, time.UTC)
	u := UserAggregate{
		ID:           "user-1234",
		Email:        "jane.doe@example.com",
		Phone:        "+1 555 123 4567",
		Name:         "Jane Doe",
		Address:      "221 Main St, Boston MA",
		DateOfBirth:  &dob,
		RegisteredAt: time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC),
		OrderCount:   3,
		TotalSpend:   100,
		ReviewCount:  2,
	}

	p := e.Anonymize(u)
	assert.Equal(t, Age35to44, p.AgeBand)
	assert.Equal(t, "us-northeast", p.Region)
	assert.Equal(t, "2024-03", p.RegistrationMonth)
	assert.Equal(t, 3, p.OrderCount)
	assert.Equal(t, 100.0, p.TotalSpend)
	assert.Equal(t, 33.33, p.AverageOrderValue)
	assert.Equal(t, 2, p.ReviewCount)

	assert.NotEqual(t, u.ID, p.AnonymousID)
	assert.NotEqual(t, p.AnonymousID, e.Anonymize(u).AnonymousID)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	for _, identity := range []string{u.ID, u.Email, u.Phone, u.Name, "jane", "Doe", "Main St"} {
		assert.NotContains(t, string(data), identity)
	}
}

func TestAnonymizeFallbacks(t *testing.T) {
	e := NewEngine(Config{Gazetteer: []RegionRule{{Match: "Springfield", Region: "midwest"}}}, failingEncryptor{}, nil, nil, nil)

	p := e.Anonymize(UserAggregate{Address: "742 Evergreen Terrace, SPRINGFIELD"})
	assert.Equal(t, "midwest", p.Region)
	assert.Equal(t, AgeUnknown, p.AgeBand)
	assert.Equal(t, "", p.RegistrationMonth)
	assert.Equal(t, 0.0, p.AverageOrderValue)

	assert.Equal(t, RegionUnknown, e.Region("  "))
	assert.Equal(t, RegionOther, e.Region("Boston"))
}

func TestAgeBands(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	born := func(y, m, d int) *time.Time {
		ts := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
		return &ts
	}

	tests := []struct {
		dob  *time.Time
		want string
	}{
		{nil, AgeUnknown},
		{born(2030, 1, 1), AgeUnknown},
		{born(2008, 1, 11), AgeUnder18},
		{born(2008, 1, 10), Age18to24},
		{born(2001, 6, 1), Age18to24},
		{born(2000, 1, 1), Age25to34},
		{born(1985, 1, 1), Age35to44},
		{born(1975, 1, 1), Age45to54},
		{born(1965, 1, 1), Age55to64},
		{born(1961, 1, 10), Age65Plus},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AgeBand(tt.dob, now))
	}
}

func TestMaskValue(t *testing.T) {
	tests := []struct {
		kind MaskKind
		in   string
		want string
	}{
		{MaskEmail, "jane@example.com", "ja***@example.com"},
		{MaskEmail, "jo@example.com", "j***@example.com"},
		{MaskEmail, "j@example.com", "j***@example.com"},
		{MaskEmail, "@example.com", "***@example.com"},
		{MaskPhone, "+1 (555) 123-4567", "155*****567"},
		{MaskPhone, "12345", "*****"},
		{MaskCard, "4111 1111 1111 1234", "**** **** **** 1234"},
		{MaskCard, "12", "****"},
		{MaskGeneric, "Jonathan", "J***n"},
		{MaskGeneric, "ab", "***"},
		{MaskGeneric, "", "***"},
	}

	for _, tt := range tests {
		got := MaskValue(tt.kind, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, got, MaskValue(tt.kind, got), "re-mask of %q", got)
	}
}

func TestMaskIsIdempotentForOddInputs(t *testing.T) {
	inputs := []string{"j*ne*@x.io", "**@x.io", "a*b", "*", "ü@ß.de", "5*5*5*5*5*5*5", strings.Repeat("9", 20)}
	for _, kind := range []MaskKind{MaskEmail, MaskPhone, MaskCard, MaskGeneric} {
		for _, in := range inputs {
			once := MaskValue(kind, in)
			assert.Equal(t, once, MaskValue(kind, once), "kind %d input %q", kind, in)
		}
	}
}

func TestMaskRecord(t *testing.T) {
	in := map[string]interface{}{
		"email":        "jane@example.com",
		"mobile_phone": "5551234567",
		"card_number":  "4111111111111111",
		"name":         "Jane",
		"zip":          12345,
		"note":         nil,
	}

	out := Mask(in, []string{"email", "mobile_phone", "card_number", "name", "zip", "note", "missing"})
	assert.Equal(t, "ja***@example.com", out["email"])
	assert.Equal(t, "555****567", out["mobile_phone"])
	assert.Equal(t, "**** **** **** 1111", out["card_number"])
	assert.Equal(t, "J***e", out["name"])
	assert.Equal(t, "1***5", out["zip"])
	assert.Nil(t, out["note"])
	_, ok := out["missing"]
	assert.False(t, ok)

	assert.Equal(t, "jane@example.com", in["email"])
	assert.Equal(t, out, Mask(out, []string{"email", "mobile_phone", "card_number", "name", "zip"}))
}
