package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func echoHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("received: " + string(body)))
}

func TestGzipMiddleware(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		gzipRequest  bool
		acceptGzip   bool
		wantEncoding string
	}{
		{
			name:         "клиент принимает gzip",
			body:         `{"order_id":1}`,
			acceptGzip:   true,
			wantEncoding: "gzip",
		},
		{
			name:         "клиент не принимает gzip",
			body:         `{"order_id":2}`,
			acceptGzip:   false,
			wantEncoding: "",
		},
		{
			name:         "сжатое тело запроса",
			body:         `{"question":"расшифруйте анализ"}`,
			gzipRequest:  true,
			acceptGzip:   true,
			wantEncoding: "gzip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reqBody io.Reader
			if tt.gzipRequest {
				var buf bytes.Buffer
				zw := gzip.NewWriter(&buf)
				if _, err := zw.Write([]byte(tt.body)); err != nil {
					t.Fatalf("write gzip: %v", err)
				}
				if err := zw.Close(); err != nil {
					t.Fatalf("close gzip: %v", err)
				}
				reqBody = &buf
			} else {
				reqBody = strings.NewReader(tt.body)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/orders", reqBody)
			if tt.gzipRequest {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptGzip {
				req.Header.Set("Accept-Encoding", "gzip")
			}

			w := httptest.NewRecorder()
			GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			if res.StatusCode != http.StatusOK {
				t.Fatalf("статус = %d, ожидался 200", res.StatusCode)
			}
			if ce := res.Header.Get("Content-Encoding"); ce != tt.wantEncoding {
				t.Fatalf("Content-Encoding = %q, ожидалось %q", ce, tt.wantEncoding)
			}

			var body []byte
			var err error
			if tt.wantEncoding == "gzip" {
				zr, zerr := gzip.NewReader(res.Body)
				if zerr != nil {
					t.Fatalf("new gzip reader: %v", zerr)
				}
				defer zr.Close()
				body, err = io.ReadAll(zr)
			} else {
				body, err = io.ReadAll(res.Body)
			}
			if err != nil {
				t.Fatalf("read body: %v", err)
			}

			if string(body) != "received: "+tt.body {
				t.Fatalf("тело = %q", string(body))
			}
		})
	}
}

func TestGzipMiddlewareBadRequestBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("не gzip"))
	req.Header.Set("Content-Encoding", "gzip")

	w := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("статус = %d, ожидался 400", w.Code)
	}
}
