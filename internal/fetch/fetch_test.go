package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func testClient() *Client {
	return New(Options{MaxRetries: 3, Sleep: noSleep, MinBodyLen: 10})
}

const articlePage = `<html><head><title>Debate presidencial</title></head><body>
<article><h1>Debate presidencial</h1>
<p>Los candidatos presentaron sus propuestas sobre economía, seguridad ciudadana y educación
durante el primer debate organizado por el Jurado Nacional de Elecciones en Lima.</p>
<p>El encuentro duró más de tres horas y fue transmitido por señal abierta a todo el país,
con preguntas formuladas por periodistas y ciudadanos de distintas regiones.</p>
</article></body></html>`

func TestGetReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "electwatch-test", r.Header.Get("User-Agent"))
		w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	c := New(Options{UserAgent: "electwatch-test", Sleep: noSleep})
	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "Debate presidencial")
}

func TestGetDetectsCaptcha(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Just a moment...</title></head>
<body><div class="cf-challenge">Checking your browser before accessing the site.</div></body></html>`))
	}))
	defer srv.Close()

	_, err := testClient().Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, IsBlocked(err))
	assert.False(t, IsTransient(err))
}

func TestGetRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	_, err := testClient().Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient().Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, KindRateLimited, KindOf(err))
	assert.Equal(t, int32(4), calls.Load())
}

func TestRetriesDefaultToThree(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(Options{Sleep: noSleep}).Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(4), calls.Load())

	calls.Store(0)
	_, err = New(Options{MaxRetries: -1, Sleep: noSleep}).Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testClient().Get(context.Background(), srv.URL)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestForbiddenChallengeIsBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`<html><title>Attention Required! | Cloudflare</title></html>`))
	}))
	defer srv.Close()

	_, err := testClient().Get(context.Background(), srv.URL)
	assert.True(t, IsBlocked(err))
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total": 2, "items": ["a", "b"]}`))
	}))
	defer srv.Close()

	var out struct {
		Total int      `json:"total"`
		Items []string `json:"items"`
	}
	header := http.Header{"Authorization": []string{"Bearer token"}}
	require.NoError(t, testClient().GetJSON(context.Background(), srv.URL, header, &out))
	assert.Equal(t, 2, out.Total)
	assert.Equal(t, []string{"a", "b"}, out.Items)
}

func TestGetJSONMalformedIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total": `))
	}))
	defer srv.Close()

	var out map[string]any
	err := testClient().GetJSON(context.Background(), srv.URL, nil, &out)
	assert.Equal(t, KindParse, KindOf(err))
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, testClient().PostJSON(context.Background(), srv.URL, nil, map[string]string{"q": "x"}, &out))
	assert.True(t, out.OK)
}

func TestDetectBlock(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		minLen  int
		blocked bool
	}{
		{"normal page", articlePage, 64, false},
		{"too short", "<html></html>", 64, true},
		{"incapsula", "<html><body>Request unsuccessful. Incapsula incident ID: 123</body></html>", 10, true},
		{"json with marker text", `{"title": "access denied to records"}`, 2, false},
		{"garbled", strings.Repeat("�\x01", 50) + "ok", 10, true},
		{"large page marker only in body", "<html><title>Noticias</title>" + strings.Repeat("texto ", 8000) + "captcha</html>", 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, blocked := DetectBlock([]byte(tt.body), tt.minLen)
			assert.Equal(t, tt.blocked, blocked)
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, KindRateLimited, ClassifyStatus(429, "u").Kind)
	assert.Equal(t, KindForbidden, ClassifyStatus(403, "u").Kind)
	assert.Equal(t, KindNotFound, ClassifyStatus(404, "u").Kind)
	assert.Equal(t, KindUpstream, ClassifyStatus(502, "u").Kind)
	assert.Equal(t, KindUnexpected, ClassifyStatus(418, "u").Kind)
	assert.True(t, ClassifyStatus(503, "u").Transient())
	assert.False(t, ClassifyStatus(404, "u").Transient())
}

func TestExtractArticle(t *testing.T) {
	text, err := ExtractArticle([]byte(articlePage), "https://example.pe/debate")
	require.NoError(t, err)
	assert.Contains(t, text, "seguridad ciudadana")
}
