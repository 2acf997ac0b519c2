package pii

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedact_Email(t *testing.T) {
	r := New()
	got := r.Redact("contact me at jane.doe@example.com please", ProfileProduction)
	assert.Equal(t, "contact me at [REDACTED_EMAIL] please", got)
}

func TestRedact_Phone(t *testing.T) {
	r := New()
	got := r.Redact("call 555-123-4567 now", ProfileProduction)
	assert.Equal(t, "call [REDACTED_PHONE] now", got)
}

func TestRedact_NationalID(t *testing.T) {
	r := New()
	got := r.Redact("ssn 123-45-6789 on file", ProfileProduction)
	assert.Equal(t, "ssn [REDACTED_ID] on file", got)
}

func TestRedact_CardNumberLuhnValid(t *testing.T) {
	r := New()
	// 4111111111111111 is a well-known Luhn-valid test card number.
	got := r.Redact("card 4111111111111111 charged", ProfileProduction)
	assert.Equal(t, "card [REDACTED_CARD] charged", got)
}

func TestRedact_DigitRunFailingLuhnIsLeftAlone(t *testing.T) {
	r := New()
	// 13-19 digits but fails Luhn: must not be flagged as a card number.
	got := r.Redact("order number 1234567890123", ProfileProduction)
	assert.Equal(t, "order number 1234567890123", got)
}

func TestRedact_Idempotent(t *testing.T) {
	r := New()
	text := "email jane@example.com, phone 555-123-4567, card 4111111111111111"
	once := r.Redact(text, ProfileProduction)
	twice := r.Redact(once, ProfileProduction)
	assert.Equal(t, once, twice)
}

func TestRedact_ProfileDevelopmentOnlyRedactsCards(t *testing.T) {
	r := New()
	text := "email jane@example.com, card 4111111111111111"
	got := r.Redact(text, ProfileDevelopment)
	assert.Contains(t, got, "jane@example.com")
	assert.Contains(t, got, "[REDACTED_CARD]")
}

func TestRedact_ProfileProductionRedactsEverything(t *testing.T) {
	r := New()
	text := "email jane@example.com, card 4111111111111111"
	got := r.Redact(text, ProfileProduction)
	assert.NotContains(t, got, "jane@example.com")
	assert.NotContains(t, got, "4111111111111111")
}

func TestRedact_UnknownProfileFallsBackToProduction(t *testing.T) {
	r := New()
	got := r.Redact("jane@example.com", Profile("bogus"))
	assert.Equal(t, "[REDACTED_EMAIL]", got)
}

func TestRedact_CustomPatternsApplyAfterBuiltins(t *testing.T) {
	r := New(Pattern{Name: "internal_code", Regex: regexp.MustCompile(`PROJ-\d+`), Replacement: "[REDACTED_PROJECT]"})
	got := r.Redact("see ticket PROJ-4821 for details", ProfileProduction)
	assert.Equal(t, "see ticket [REDACTED_PROJECT] for details", got)
}
