package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataTable(t *testing.T) {
	want := map[Code]Metadata{
		CodeValidation:        {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
		CodeInsufficientStock: {HTTPStatus: http.StatusBadRequest, PublicMessage: "insufficient stock", DetailsAllowed: true},
		CodeUnauthorized:      {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
		CodeForbidden:         {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
		CodeNotFound:          {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
		CodeConflict:          {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected, retry the request"},
		CodeIdempotency:       {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true},
		CodeInternal:          {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"},
		CodeDependency:        {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true},
	}
	if len(want) != len(metadataByCode) {
		t.Fatalf("metadata covers %d codes, test expects %d", len(metadataByCode), len(want))
	}
	for code, meta := range want {
		if got := MetadataFor(code); got != meta {
			t.Errorf("%s: got %+v, want %+v", code, got, meta)
		}
	}
	if got := MetadataFor("HARVEST_FAILED"); got != want[CodeInternal] {
		t.Fatalf("unknown code should fall back to internal, got %+v", got)
	}
}

func TestErrorValue(t *testing.T) {
	plain := New(CodeValidation, "qty must be at least 1")
	if plain.Code() != CodeValidation || plain.Message() != "qty must be at least 1" || plain.Details() != nil {
		t.Fatalf("unexpected error value %#v", plain)
	}
	if plain.Error() != "VALIDATION_ERROR: qty must be at least 1" {
		t.Fatalf("Error() = %q", plain.Error())
	}
	if same := plain.WithDetails(map[string]int{"qty": 0}); same != plain || plain.Details() == nil {
		t.Fatalf("WithDetails should set details in place")
	}

	formatted := Newf(CodeNotFound, "listing %d not found", 7)
	if formatted.Message() != "listing 7 not found" {
		t.Fatalf("Newf message %q", formatted.Message())
	}

	var missing *Error
	if missing.Code() != CodeInternal || missing.Message() != "" || missing.Error() != "" || missing.Unwrap() != nil {
		t.Fatalf("nil *Error accessors should be safe")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("dial tcp: refused")
	err := Wrap(CodeDependency, cause, "ping redis")

	if !stdErrors.Is(err, cause) {
		t.Fatalf("cause lost")
	}
	if err.Error() != "DEPENDENCY_ERROR: ping redis: dial tcp: refused" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if err.Message() != "ping redis" {
		t.Fatalf("Message() should exclude the cause, got %q", err.Message())
	}
}

func TestAsAndIsCode(t *testing.T) {
	inner := New(CodeForbidden, "seller does not own sub-order")
	outer := fmt.Errorf("update item: %w", inner)

	cases := []struct {
		err  error
		code Code
		want bool
	}{
		{outer, CodeForbidden, true},
		{outer, CodeNotFound, false},
		{stdErrors.New("plain"), CodeInternal, false},
		{nil, CodeInternal, false},
	}
	for _, tc := range cases {
		if got := IsCode(tc.err, tc.code); got != tc.want {
			t.Errorf("IsCode(%v, %s) = %v", tc.err, tc.code, got)
		}
	}
	if As(outer) != inner {
		t.Fatalf("As should return the wrapped *Error")
	}
	if As(nil) != nil || As(stdErrors.New("x")) != nil {
		t.Fatalf("As should return nil without a typed error")
	}
}

func TestDumpPostgresError(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23503",
		ConstraintName: "fk_order_items_listing",
		TableName:      "order_items",
		Message:        "violates foreign key",
	}
	dump := Dump(Wrap(CodeConflict, pgErr, "persist order"))

	if dump.Code != CodeConflict || len(dump.Chain) != 2 {
		t.Fatalf("dump %+v", dump)
	}
	if dump.PGCode != "23503" || dump.PGConstraint != "fk_order_items_listing" || dump.PGTable != "order_items" {
		t.Fatalf("pg fields %+v", dump)
	}

	fields := dump.LogFields()
	if fields["pg_code"] != "23503" || fields["error_code"] != CodeConflict {
		t.Fatalf("log fields %v", fields)
	}
}

func TestDumpOmitsEmptyPostgresFields(t *testing.T) {
	fields := Dump(New(CodeNotFound, "order not found")).LogFields()
	for _, key := range []string{"pg_code", "pg_constraint", "pg_table"} {
		if _, ok := fields[key]; ok {
			t.Fatalf("%s should be omitted: %v", key, fields)
		}
	}
}
