package g2b

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(Options{
		BaseURL:    server.URL,
		ServiceKey: "test-key",
		UserAgent:  "Bid Comb/test",
		Location:   time.FixedZone("KST", 9*60*60),
	})
	return client, server
}

func testWindow() Window {
	kst := time.FixedZone("KST", 9*60*60)
	return Window{
		Start: time.Date(2025, 1, 14, 9, 0, 0, 0, kst),
		End:   time.Date(2025, 1, 15, 9, 0, 0, 0, kst),
	}
}

const listResponse = `{
  "response": {
    "header": {"resultCode": "00", "resultMsg": "정상"},
    "body": {
      "items": [
        {"bidNtceNo": "R25BK001", "bidNtceOrd": "000", "bidNtceNm": "2025 교육여행 용역", "ntceInsttNm": "서울특별시교육청", "presmptPrce": 50000000},
        {"bidNtceNo": "R25BK002", "bidNtceOrd": "000", "bidNtceNm": "도로 보수 공사"},
        {"bidNtceNo": "R25BK003", "bidNtceOrd": "000", "bidNtceNm": "현장 교육여행 운영", "asignBdgtAmt": "12,000,000"}
      ],
      "numOfRows": 10, "pageNo": 1, "totalCount": "3"
    }
  }
}`

func TestClient_FetchSendsQueryAndFiltersTitles(t *testing.T) {
	var query url.Values
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		if r.Header.Get("User-Agent") != "Bid Comb/test" {
			t.Errorf("Expected user agent header, got '%s'", r.Header.Get("User-Agent"))
		}
		w.Write([]byte(listResponse))
	})

	page, err := client.FetchPage(context.Background(), "교육여행", testWindow(), 2, 10)
	if err != nil {
		t.Fatal(err)
	}

	expectedParams := map[string]string{
		"serviceKey": "test-key",
		"pageNo":     "2",
		"numOfRows":  "10",
		"type":       "json",
		"inqryDiv":   "1",
		"inqryBgnDt": "202501140900",
		"inqryEndDt": "202501150859",
		"bidNtceNm":  "교육여행",
	}
	for key, expected := range expectedParams {
		if query.Get(key) != expected {
			t.Errorf("Expected %s=%s, got '%s'", key, expected, query.Get(key))
		}
	}

	if page.Fetched != 3 {
		t.Errorf("Expected 3 fetched items, got %d", page.Fetched)
	}
	if page.TotalCount != 3 {
		t.Errorf("Expected total count 3, got %d", page.TotalCount)
	}
	if len(page.Items) != 2 {
		t.Fatalf("Expected 2 items after title filter, got %d", len(page.Items))
	}
	if page.Items[0].NoticeID != "R25BK001" || page.Items[1].NoticeID != "R25BK003" {
		t.Errorf("Unexpected items: %+v", page.Items)
	}
	if page.Items[0].BudgetFallback != "50000000" {
		t.Errorf("Expected numeric budget decoded as string, got '%s'", page.Items[0].BudgetFallback)
	}
	if page.Items[1].Budget != "12,000,000" {
		t.Errorf("Expected budget '12,000,000', got '%s'", page.Items[1].Budget)
	}
}

func TestClient_FetchItemShapes(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected int
	}{
		{"list", listResponse, 3},
		{"single object", `{"response":{"header":{"resultCode":"00"},"body":{"items":{"bidNtceNo":"N1","bidNtceNm":"용역"},"totalCount":1}}}`, 1},
		{"wrapped list", `{"response":{"header":{"resultCode":"00"},"body":{"items":{"item":[{"bidNtceNo":"N1","bidNtceNm":"용역"},{"bidNtceNo":"N2","bidNtceNm":"용역"}]}}}}`, 2},
		{"wrapped single", `{"response":{"header":{"resultCode":"00"},"body":{"items":{"item":{"bidNtceNo":"N1","bidNtceNm":"용역"}}}}}`, 1},
		{"absent", `{"response":{"header":{"resultCode":"00"},"body":{"totalCount":0}}}`, 0},
		{"null", `{"response":{"header":{"resultCode":"00"},"body":{"items":null}}}`, 0},
		{"empty string", `{"response":{"header":{"resultCode":"00"},"body":{"items":""}}}`, 0},
		{"empty array", `{"response":{"header":{"resultCode":"00"},"body":{"items":[]}}}`, 0},
		{"no data code", `{"response":{"header":{"resultCode":"03","resultMsg":"NODATA_ERROR"}}}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})

			page, err := client.FetchPage(context.Background(), "", testWindow(), 1, 10)
			if err != nil {
				t.Fatalf("Expected success, got %v", err)
			}
			if page.Fetched != tt.expected || len(page.Items) != tt.expected {
				t.Errorf("Expected %d items, got %d (fetched %d)", tt.expected, len(page.Items), page.Fetched)
			}
		})
	}
}

func TestClient_ResultCodeErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		kind      ErrorKind
		retryable bool
	}{
		{"quota", 200, `{"response":{"header":{"resultCode":"22","resultMsg":"LIMITED_NUMBER_OF_SERVICE_REQUESTS_EXCEEDS_ERROR"}}}`, KindQuotaExceeded, true},
		{"invalid params", 200, `{"response":{"header":{"resultCode":"10","resultMsg":"INVALID_REQUEST_PARAMETER_ERROR"}}}`, KindInvalidParams, false},
		{"application error", 200, `{"response":{"header":{"resultCode":"01","resultMsg":"APPLICATION_ERROR"}}}`, KindUpstream, true},
		{"timeout", 200, `{"response":{"header":{"resultCode":"05","resultMsg":"SERVICETIMEOUT_ERROR"}}}`, KindUpstream, true},
		{"access denied", 200, `{"response":{"header":{"resultCode":"20","resultMsg":"SERVICE_ACCESS_DENIED_ERROR"}}}`, KindAccessDenied, false},
		{"unknown code", 200, `{"response":{"header":{"resultCode":"99","resultMsg":"UNKNOWN_ERROR"}}}`, KindUnknown, false},
		{"xml key error", 200, `<OpenAPI_ServiceResponse><cmmMsgHeader><errMsg>SERVICE ERROR</errMsg><returnAuthMsg>SERVICE_KEY_IS_NOT_REGISTERED_ERROR</returnAuthMsg><returnReasonCode>30</returnReasonCode></cmmMsgHeader></OpenAPI_ServiceResponse>`, KindAccessDenied, false},
		{"xml quota error", 200, `<OpenAPI_ServiceResponse><cmmMsgHeader><returnReasonCode>22</returnReasonCode></cmmMsgHeader></OpenAPI_ServiceResponse>`, KindQuotaExceeded, true},
		{"garbage", 200, `{not json`, KindUnknown, false},
		{"http 503", 503, `unavailable`, KindUpstream, true},
		{"http 401", 401, `unauthorized`, KindAccessDenied, false},
		{"http 429", 429, `slow down`, KindQuotaExceeded, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.Fetch(context.Background(), "교육", testWindow(), 1, 10)
			if err == nil {
				t.Fatal("Expected error")
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Expected *APIError, got %T: %v", err, err)
			}
			if apiErr.Kind != tt.kind {
				t.Errorf("Expected kind %s, got %s", tt.kind, apiErr.Kind)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("Expected retryable=%v, got %v", tt.retryable, IsRetryable(err))
			}
			if IsFatal(err) == tt.retryable {
				t.Errorf("Expected fatal=%v, got %v", !tt.retryable, IsFatal(err))
			}
		})
	}
}

func TestClient_TransportErrorIsRetryable(t *testing.T) {
	client := NewClient(Options{BaseURL: "http://127.0.0.1:1", ServiceKey: "k", Timeout: time.Second})

	_, err := client.Fetch(context.Background(), "", testWindow(), 1, 10)
	if !IsRetryable(err) {
		t.Errorf("Expected transport error to be retryable, got %v", err)
	}
}

func TestClient_CancelledContextIsNotClassified(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(listResponse))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Fetch(ctx, "", testWindow(), 1, 10)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if IsRetryable(err) || IsFatal(err) {
		t.Error("Cancellation should be neither retryable nor fatal upstream error")
	}
}

func TestClient_LookupByNumber(t *testing.T) {
	var query url.Values
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Write([]byte(`{"response":{"header":{"resultCode":"00"},"body":{"items":{"bidNtceNo":"R25BK001","bidNtceNm":"용역"}}}}`))
	})

	raws, err := client.Lookup(context.Background(), "R25BK001")
	if err != nil {
		t.Fatal(err)
	}
	if query.Get("inqryDiv") != "2" || query.Get("bidNtceNo") != "R25BK001" {
		t.Errorf("Unexpected lookup query: %v", query)
	}
	if query.Get("inqryBgnDt") != "" {
		t.Error("Lookup should not send a date range")
	}
	if len(raws) != 1 {
		t.Errorf("Expected 1 item, got %d", len(raws))
	}
}

func TestDecodeServiceKey(t *testing.T) {
	if got := decodeServiceKey("abc%2Bdef%3D%3D"); got != "abc+def==" {
		t.Errorf("Expected decoded key, got '%s'", got)
	}
	if got := decodeServiceKey(" abc+def== "); got != "abc+def==" {
		t.Errorf("Expected raw key passthrough, got '%s'", got)
	}
}

func TestClient_HTTPErrorMessageKeepsValidUTF8(t *testing.T) {
	body := "x" + strings.Repeat("서비스 오류 ", 40)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(body))
	})

	_, err := client.FetchPage(context.Background(), "교육", testWindow(), 1, 10)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if apiErr.Kind != KindUpstream {
		t.Errorf("Expected kind %s, got %s", KindUpstream, apiErr.Kind)
	}
	if len(apiErr.Message) > maxMessageBytes {
		t.Errorf("Expected message of at most %d bytes, got %d", maxMessageBytes, len(apiErr.Message))
	}
	if !utf8.ValidString(apiErr.Message) {
		t.Errorf("Expected valid UTF-8 message, got %q", apiErr.Message)
	}
	if !strings.HasPrefix(body, apiErr.Message) {
		t.Errorf("Expected message to be a prefix of the body, got %q", apiErr.Message)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		n        int
		expected string
	}{
		{"abc", 5, "abc"},
		{"abcdef", 3, "abc"},
		{"가나다", 4, "가"},
		{"가나다", 6, "가나"},
		{"가", 2, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.input, tt.n); got != tt.expected {
			t.Errorf("Expected %q for truncate(%q, %d), got %q", tt.expected, tt.input, tt.n, got)
		}
	}
}
