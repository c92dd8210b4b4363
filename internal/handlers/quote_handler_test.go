package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ternarybob/pretium/internal/interfaces"
	"github.com/ternarybob/pretium/internal/models"
)

// mockQuoteService implements interfaces.QuoteService for testing
type mockQuoteService struct {
	fetchFunc func(ctx context.Context, req *models.QuoteRequest) (*models.Table, error)
}

func (m *mockQuoteService) Fetch(ctx context.Context, req *models.QuoteRequest) (*models.Table, error) {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, req)
	}
	return models.NewTable("date", "close"), nil
}

func TestQuoteHandler_Success(t *testing.T) {
	table := models.NewTable("date", "open", "high", "low", "close", "volume", "amount")
	table.AddRow("20240102", "10.0", "10.5", "9.9", "10.2", "1000", "10200")

	mockService := &mockQuoteService{
		fetchFunc: func(ctx context.Context, req *models.QuoteRequest) (*models.Table, error) {
			return table, nil
		},
	}

	handler := NewQuoteHandler(mockService, nil)
	req := httptest.NewRequest("GET", "/api/quote?market=cn&code=600519&capability=history", nil)
	rec := httptest.NewRecorder()

	handler.QuoteHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response models.Table
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if len(response.Columns) != 7 {
		t.Errorf("Expected 7 columns, got %d", len(response.Columns))
	}
	if response.Len() != 1 {
		t.Errorf("Expected 1 row, got %d", response.Len())
	}
	if response.Rows[0][0] != "20240102" {
		t.Errorf("Expected first cell '20240102', got %q", response.Rows[0][0])
	}
}

func TestQuoteHandler_RequestParsing(t *testing.T) {
	var captured *models.QuoteRequest
	mockService := &mockQuoteService{
		fetchFunc: func(ctx context.Context, req *models.QuoteRequest) (*models.Table, error) {
			captured = req
			return models.NewTable("date"), nil
		},
	}

	handler := NewQuoteHandler(mockService, nil)
	url := "/api/quote?market=cn&code=600519&codes=000001,600000&start=2024-01-01&end=2024-01-31&freq=daily&adjust=qfq&fields=full"
	req := httptest.NewRequest("GET", url, nil)
	rec := httptest.NewRecorder()

	handler.QuoteHandler(rec, req)

	if captured == nil {
		t.Fatal("Expected service to be called")
	}
	if captured.Market != "cn" {
		t.Errorf("Expected market 'cn', got %q", captured.Market)
	}
	if len(captured.Codes) != 3 {
		t.Fatalf("Expected 3 codes, got %d: %v", len(captured.Codes), captured.Codes)
	}
	if captured.Codes[0] != "600519" || captured.Codes[1] != "000001" || captured.Codes[2] != "600000" {
		t.Errorf("Unexpected codes: %v", captured.Codes)
	}
	if captured.Start != "2024-01-01" || captured.End != "2024-01-31" {
		t.Errorf("Unexpected range: %q to %q", captured.Start, captured.End)
	}
	if captured.Freq != "daily" || captured.Adjust != "qfq" || captured.Fields != "full" {
		t.Errorf("Unexpected bar params: freq=%q adjust=%q fields=%q", captured.Freq, captured.Adjust, captured.Fields)
	}
}

func TestQuoteHandler_CapabilityDefaultsToHistory(t *testing.T) {
	var captured *models.QuoteRequest
	mockService := &mockQuoteService{
		fetchFunc: func(ctx context.Context, req *models.QuoteRequest) (*models.Table, error) {
			captured = req
			return models.NewTable("date"), nil
		},
	}

	handler := NewQuoteHandler(mockService, nil)
	req := httptest.NewRequest("GET", "/api/quote?market=cn&code=600519", nil)
	rec := httptest.NewRecorder()

	handler.QuoteHandler(rec, req)

	if captured == nil {
		t.Fatal("Expected service to be called")
	}
	if captured.Capability != "history" {
		t.Errorf("Expected capability 'history', got %q", captured.Capability)
	}
}

func TestQuoteHandler_MissingParameters(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"Missing market", "/api/quote?code=600519"},
		{"Missing code", "/api/quote?market=cn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			mockService := &mockQuoteService{
				fetchFunc: func(ctx context.Context, req *models.QuoteRequest) (*models.Table, error) {
					called = true
					return nil, nil
				},
			}

			handler := NewQuoteHandler(mockService, nil)
			req := httptest.NewRequest("GET", tt.url, nil)
			rec := httptest.NewRecorder()

			handler.QuoteHandler(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", rec.Code)
			}
			if called {
				t.Error("Expected service not to be called")
			}
		})
	}
}

func TestQuoteHandler_InvalidParameterError(t *testing.T) {
	mockService := &mockQuoteService{
		fetchFunc: func(ctx context.Context, req *models.QuoteRequest) (*models.Table, error) {
			return nil, &models.InvalidParameterError{Field: "start", Value: "notadate", Reason: "unrecognized date"}
		},
	}

	handler := NewQuoteHandler(mockService, nil)
	req := httptest.NewRequest("GET", "/api/quote?market=cn&code=600519&start=notadate", nil)
	rec := httptest.NewRecorder()

	handler.QuoteHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)
	if response["status"] != "error" {
		t.Errorf("Expected status 'error', got %v", response["status"])
	}
}

func TestQuoteHandler_NoProviderAvailable(t *testing.T) {
	mockService := &mockQuoteService{
		fetchFunc: func(ctx context.Context, req *models.QuoteRequest) (*models.Table, error) {
			return nil, &interfaces.NoProviderAvailableError{Market: "us", Capability: models.CapabilityFactors}
		},
	}

	handler := NewQuoteHandler(mockService, nil)
	req := httptest.NewRequest("GET", "/api/quote?market=us&code=AAPL&capability=factors", nil)
	rec := httptest.NewRecorder()

	handler.QuoteHandler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", rec.Code)
	}
}

func TestQuoteHandler_AllSourcesExhausted(t *testing.T) {
	mockService := &mockQuoteService{
		fetchFunc: func(ctx context.Context, req *models.QuoteRequest) (*models.Table, error) {
			return nil, &interfaces.AllSourcesExhaustedError{
				Market:     "cn",
				Capability: models.CapabilityHistory,
				Failures: []interfaces.ProviderFailure{
					{Provider: "eastmoney", Reason: "request timed out"},
					{Provider: "tusharepro", Reason: "token invalid"},
				},
			}
		},
	}

	handler := NewQuoteHandler(mockService, nil)
	req := httptest.NewRequest("GET", "/api/quote?market=cn&code=600519", nil)
	rec := httptest.NewRecorder()

	handler.QuoteHandler(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Expected status 502, got %d", rec.Code)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	failures, ok := response["failures"].([]interface{})
	if !ok {
		t.Fatalf("Expected failures array, got %T", response["failures"])
	}
	if len(failures) != 2 {
		t.Fatalf("Expected 2 failures, got %d", len(failures))
	}

	first := failures[0].(map[string]interface{})
	if first["provider"] != "eastmoney" {
		t.Errorf("Expected first failure from 'eastmoney', got %v", first["provider"])
	}
	if first["reason"] != "request timed out" {
		t.Errorf("Expected reason 'request timed out', got %v", first["reason"])
	}

	second := failures[1].(map[string]interface{})
	if second["provider"] != "tusharepro" {
		t.Errorf("Expected second failure from 'tusharepro', got %v", second["provider"])
	}
}

func TestQuoteHandler_UnexpectedError(t *testing.T) {
	mockService := &mockQuoteService{
		fetchFunc: func(ctx context.Context, req *models.QuoteRequest) (*models.Table, error) {
			return nil, errors.New("disk on fire")
		},
	}

	handler := NewQuoteHandler(mockService, nil)
	req := httptest.NewRequest("GET", "/api/quote?market=cn&code=600519", nil)
	rec := httptest.NewRecorder()

	handler.QuoteHandler(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", rec.Code)
	}

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)
	if response["error"] != "Failed to fetch quote data" {
		t.Errorf("Expected generic error message, got %v", response["error"])
	}
}

func TestQuoteHandler_MethodNotAllowed(t *testing.T) {
	handler := NewQuoteHandler(&mockQuoteService{}, nil)
	req := httptest.NewRequest("POST", "/api/quote?market=cn&code=600519", nil)
	rec := httptest.NewRecorder()

	handler.QuoteHandler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", rec.Code)
	}
}
