package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/speedy-van/dispatch/pkg/errors"
	"github.com/speedy-van/dispatch/pkg/types"
)

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"hello": "world"})

	if got := w.Code; got != http.StatusOK {
		t.Fatalf("expected status 200 but got %d", got)
	}

	var body types.SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode success envelope: %v", err)
	}
	if body.Data.(map[string]any)["hello"] != "world" {
		t.Fatalf("unexpected payload %v", body.Data)
	}
}

func TestWriteErrorMapsTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "bad input").
		WithDetails(map[string]string{"field": "demo"})
	WriteError(context.Background(), nil, w, err)

	if got := w.Code; got != http.StatusBadRequest {
		t.Fatalf("expected status 400 but got %d", got)
	}

	var body types.ErrorEnvelope
	if decodeErr := json.NewDecoder(w.Body).Decode(&body); decodeErr != nil {
		t.Fatalf("failed to decode error envelope: %v", decodeErr)
	}
	if body.Error.Code != string(pkgerrors.CodeValidation) {
		t.Fatalf("code = %s", body.Error.Code)
	}
	if body.Error.Message != "bad input" {
		t.Fatalf("message = %s", body.Error.Message)
	}
}

func TestWriteErrorHidesUntypedDetail(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("sql: connection refused"))

	if got := w.Code; got != http.StatusInternalServerError {
		t.Fatalf("expected status 500 but got %d", got)
	}

	var body types.ErrorEnvelope
	if decodeErr := json.NewDecoder(w.Body).Decode(&body); decodeErr != nil {
		t.Fatalf("failed to decode error envelope: %v", decodeErr)
	}
	if body.Error.Message != "internal server error" {
		t.Fatalf("internal detail leaked: %s", body.Error.Message)
	}
}
