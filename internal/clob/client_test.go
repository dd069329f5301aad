package clob

import (
	"net/http"
	"testing"
)

func TestParseOrderResultSuccessBody(t *testing.T) {
	t.Parallel()
	result := parseOrderResult(http.StatusOK, []byte(`{"success":true,"orderID":"abc123"}`))
	if !result.Success || result.OrderID != "abc123" {
		t.Fatalf("parseOrderResult() = %+v, want Success=true OrderID=abc123", result)
	}
	if result.ErrorMsg != "" {
		t.Fatalf("ErrorMsg = %q, want empty on success", result.ErrorMsg)
	}
}

func TestParseOrderResultErrorBody(t *testing.T) {
	t.Parallel()
	result := parseOrderResult(http.StatusBadRequest, []byte(`{"success":false,"errorMsg":"insufficient balance"}`))
	if result.Success {
		t.Fatal("expected Success=false")
	}
	if result.ErrorMsg != "insufficient balance" {
		t.Fatalf("ErrorMsg = %q, want %q", result.ErrorMsg, "insufficient balance")
	}
}

func TestParseOrderResultFallsBackToStatusWhenBodyUnparseable(t *testing.T) {
	t.Parallel()
	result := parseOrderResult(http.StatusInternalServerError, []byte("not json"))
	if result.ErrorMsg != "status 500" {
		t.Fatalf("ErrorMsg = %q, want %q", result.ErrorMsg, "status 500")
	}
}
