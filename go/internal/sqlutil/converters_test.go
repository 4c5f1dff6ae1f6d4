package sqlutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestNullDecimalRoundTrip(t *testing.T) {
	if got := ToNullDecimal(nil); got.Valid {
		t.Fatalf("nil decimal should be NULL, got %+v", got)
	}
	d := decimal.RequireFromString("1234.50")
	got, err := FromNullDecimal(ToNullDecimal(&d))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || !got.Equal(d) {
		t.Fatalf("want %s got %v", d, got)
	}
	if _, err := FromNullDecimal(sql.NullString{String: "abc", Valid: true}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestNullablePointersAreCopies(t *testing.T) {
	id := uuid.New()
	nu := ToNullUUID(&id)
	out := FromNullUUID(nu)
	nu.UUID = uuid.Nil
	if *out != id {
		t.Fatalf("pointer should not alias the NullUUID")
	}
	if FromNullUUID(uuid.NullUUID{}) != nil {
		t.Fatalf("invalid NullUUID should map to nil")
	}

	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	if got := FromSqlTime(ToSqlTime(&now)); got == nil || !got.Equal(now) {
		t.Fatalf("want %v got %v", now, got)
	}
	if FromSqlTime(ToSqlTime(nil)) != nil {
		t.Fatalf("nil time should stay nil")
	}
}
