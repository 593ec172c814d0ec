package api

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishalSecmark/tradewebx-sub002/internal/errors"
	"github.com/vishalSecmark/tradewebx-sub002/internal/logger"
	"github.com/vishalSecmark/tradewebx-sub002/internal/parser"
)

/**
 * Unit tests for the import endpoint client
 *
 * Author: TradeImport Team
 * Updated: 2025-02-12
 */

type filterEntry struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type decodedRequest struct {
	XMLName xml.Name `xml:"dsXml"`
	UI      string   `xml:"J_Ui"`
	Filter  struct {
		Entries []filterEntry `xml:",any"`
	} `xml:"X_Filter"`
	Data string `xml:"X_Data"`
	API  string `xml:"J_Api"`
}

func (d decodedRequest) filters() map[string]string {
	out := make(map[string]string)
	for _, e := range d.Filter.Entries {
		out[e.XMLName.Local] = e.Value
	}
	return out
}

func (d decodedRequest) action() string {
	var ui map[string]string
	_ = json.Unmarshal([]byte(d.UI), &ui)
	return ui["ActionName"]
}

func decodeRequest(t *testing.T, r *http.Request) decodedRequest {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)

	var req decodedRequest
	require.NoError(t, xml.Unmarshal(body, &req))
	return req
}

func newTestClient(url string) *Client {
	return NewClient(ClientConfig{
		BaseURL:      url,
		UploadPath:   "/api/ImportData/ImportChunk",
		FinalizePath: "/api/ImportData/UpdateSequence",
		TargetsPath:  "/api/ImportData/Targets",
		Timeout:      5 * time.Second,
		UserID:       "U01",
		UserType:     "user",
	}, NewAdaptiveRateLimiter(&RateLimiterConfig{RateLimit: 0, ControlRateLimit: 10}), logger.Nop())
}

func fastPolicy(retries int) *errors.RetryPolicy {
	return &errors.RetryPolicy{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1.0,
	}
}

func sampleChunk() parser.ChunkData {
	return parser.NewChunk([]parser.Row{
		{"Code": int64(3), "Name": "Carol"},
	}, 2, 2, 2, "sess-1")
}

func TestRequestEncode(t *testing.T) {
	req := &Request{
		Action:   ActionImportChunk,
		Filters:  map[string]string{"Exchange": "NSE", "Segment": "CM", "bad key!": "x"},
		Payload:  map[string]interface{}{"rows": []int{1, 2}},
		UserID:   "U01",
		UserType: "user",
	}

	body, err := req.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(body), "<![CDATA[")

	var decoded decodedRequest
	require.NoError(t, xml.Unmarshal(body, &decoded))
	assert.Equal(t, ActionImportChunk, decoded.action())
	assert.Equal(t, map[string]string{"Exchange": "NSE", "Segment": "CM", "badkey": "x"}, decoded.filters())
	assert.JSONEq(t, `{"rows":[1,2]}`, decoded.Data)
	assert.JSONEq(t, `{"UserId":"U01","UserType":"user"}`, decoded.API)
}

func TestResponseDecoding(t *testing.T) {
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(`{
		"status": "Y",
		"message": "ok",
		"data": {"rs0": [
			{"Exchange":"NSE","Segment":"CM","FileType":"CLIENT","ClientCode":"A1","Status":"N","Remarks":"PAN missing"},
			{}
		]}
	}`), &resp))

	assert.True(t, resp.OK())
	assert.Equal(t, []Rejection{{
		Exchange: "NSE", Segment: "CM", FileType: "CLIENT", Code: "A1", Status: "N", Remark: "PAN missing",
	}}, resp.Rejections())

	var bare Response
	require.NoError(t, json.Unmarshal([]byte(`{"success":false,"message":"bad","data":[{"Code":7}]}`), &bare))
	assert.False(t, bare.OK())
	rows, err := bare.Rows()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, "7", bare.Rejections()[0].Code)
}

func TestChunkUploaderRetryBound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	uploader := NewChunkUploader(newTestClient(srv.URL), fastPolicy(3), logger.Nop())
	result := uploader.Upload(context.Background(), sampleChunk(), UploadMeta{})

	assert.False(t, result.Success)
	assert.Equal(t, int32(4), calls.Load(), "one attempt plus three retries")
	assert.Equal(t, 3, result.RetryCount)
	assert.Equal(t, 1, result.ChunkIndex)
	assert.Equal(t, 1, result.Records)
	assert.Equal(t, "HTTP 500: boom", result.Error)
}

func TestChunkUploaderSucceedsAfterRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"status":true,"message":"saved","data":{"rs0":[]}}`))
	}))
	defer srv.Close()

	result := NewChunkUploader(newTestClient(srv.URL), fastPolicy(3), logger.Nop()).
		Upload(context.Background(), sampleChunk(), UploadMeta{})

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.RetryCount)
	assert.Empty(t, result.Error)
}

func TestChunkUploaderServerRejection(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"status":false,"message":"Invalid segment for chunk"}`))
	}))
	defer srv.Close()

	result := NewChunkUploader(newTestClient(srv.URL), fastPolicy(2), logger.Nop()).
		Upload(context.Background(), sampleChunk(), UploadMeta{})

	assert.False(t, result.Success)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "Invalid segment for chunk", result.Error, "backend message is surfaced verbatim")
}

func TestChunkUploaderRetriesClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad payload"))
	}))
	defer srv.Close()

	result := NewChunkUploader(newTestClient(srv.URL), fastPolicy(3), logger.Nop()).
		Upload(context.Background(), sampleChunk(), UploadMeta{})

	assert.False(t, result.Success)
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, 3, result.RetryCount)
	assert.Equal(t, "HTTP 400: bad payload", result.Error)
}

func TestChunkUploaderRequestShape(t *testing.T) {
	var got decodedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ImportData/ImportChunk", r.URL.Path)
		assert.Equal(t, "application/xml", r.Header.Get("Content-Type"))
		got = decodeRequest(t, r)
		_, _ = w.Write([]byte(`{"status":true,"data":{"rs0":[{"Code":"3","Status":"N","Remark":"duplicate"}]}}`))
	}))
	defer srv.Close()

	chunk := sampleChunk()
	result := NewChunkUploader(newTestClient(srv.URL), fastPolicy(0), logger.Nop()).
		Upload(context.Background(), chunk, UploadMeta{
			Target:   Target{ID: "T9", FileType: "CLIENT"},
			FileName: "clients.csv",
			Headers:  []string{"Code", "Name"},
			Filters:  map[string]string{"Exchange": "NSE"},
			Extra:    map[string]interface{}{"source": "cli"},
		})

	require.True(t, result.Success)
	assert.Equal(t, []Rejection{{Code: "3", Status: "N", Remark: "duplicate"}}, result.Rejections)

	assert.Equal(t, ActionImportChunk, got.action())
	assert.Equal(t, "NSE", got.filters()["Exchange"])

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(got.Data), &payload))
	assert.Equal(t, "sess-1", payload["sessionId"])
	assert.Equal(t, float64(1), payload["chunkIndex"])
	assert.Equal(t, float64(2), payload["startIndex"])
	assert.Equal(t, float64(2), payload["endIndex"])
	assert.Equal(t, "T9", payload["targetId"])
	assert.Equal(t, "clients.csv", payload["fileName"])
	assert.Equal(t, []interface{}{"Code", "Name"}, payload["headers"])
	assert.Equal(t, map[string]interface{}{"source": "cli"}, payload["metadata"])

	// caller rows stay untouched
	assert.Equal(t, parser.Row{"Code": int64(3), "Name": "Carol"}, chunk.Data[0])
}

func TestChunkUploaderContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	policy := &errors.RetryPolicy{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}

	done := make(chan ChunkResult, 1)
	go func() {
		done <- NewChunkUploader(newTestClient(srv.URL), policy, logger.Nop()).
			Upload(ctx, sampleChunk(), UploadMeta{})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case res := <-done:
		assert.False(t, res.Success)
		assert.Equal(t, 0, res.RetryCount)
	case <-time.After(2 * time.Second):
		t.Fatal("upload did not stop on cancel")
	}
}

func TestFinalize(t *testing.T) {
	var got decodedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ImportData/UpdateSequence", r.URL.Path)
		got = decodeRequest(t, r)
		_, _ = w.Write([]byte(`{"status":true}`))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Finalize(context.Background(),
		Target{FileName: "clients", FileType: "CLIENT", ImportKey: "SEQ1"},
		map[string]string{"Exchange": "NSE"})
	require.NoError(t, err)

	assert.Equal(t, ActionUpdateSequence, got.action())
	assert.Equal(t, map[string]string{"Exchange": "NSE", "ImportKey": "SEQ1", "FileType": "CLIENT"}, got.filters())
	assert.JSONEq(t, `{"UserId":"U01","UserType":"user"}`, got.API)
}

func TestFinalizeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":false,"message":"sequence locked"}`))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Finalize(context.Background(), Target{FileName: "clients"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sequence locked")
}

func TestFetchTargets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"data":{"rs0":[
			{"FileID":"1","FileName":"clients.csv","FileType":"CLIENT","Exchange":"NSE","ImportKey":"SEQ1","IsEnabled":"Y"},
			{"FileID":"2","FileName":"margin","FileType":"MARGIN","IsEnabled":"N"},
			{"FileID":"3","FileName":"trades","FileType":"TRADE"},
			{"FileID":"4"}
		]}}`))
	}))
	defer srv.Close()

	enabled, all, err := newTestClient(srv.URL).FetchTargets(context.Background())
	require.NoError(t, err)

	require.Len(t, all, 3)
	require.Len(t, enabled, 2)
	assert.Equal(t, Target{ID: "1", FileName: "clients.csv", FileType: "CLIENT", Exchange: "NSE", ImportKey: "SEQ1", Enabled: true}, enabled[0])
	assert.Equal(t, "trades", enabled[1].FileName)
	assert.False(t, all[1].Enabled)
}

func TestFetchTargetsNotConfigured(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "http://localhost"}, nil, nil)
	_, _, err := c.FetchTargets(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeConfiguration, errors.GetErrorType(err))
}

func TestClientURL(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "https://backoffice.example.com/"}, nil, nil)
	assert.Equal(t, "https://backoffice.example.com/api/x", c.URL("/api/x"))
	assert.Equal(t, "https://other.example.com/y", c.URL("https://other.example.com/y"))
	assert.Equal(t, "https://backoffice.example.com/", c.URL(""))
}

func TestRateLimiter(t *testing.T) {
	t.Run("burst then pacing", func(t *testing.T) {
		rl := NewRateLimiter(&RateLimiterConfig{RateLimit: 20, BurstSize: 5})
		ctx := context.Background()

		start := time.Now()
		for i := 0; i < 5; i++ {
			require.NoError(t, rl.Wait(ctx))
		}
		assert.Less(t, time.Since(start), 100*time.Millisecond)

		start = time.Now()
		for i := 0; i < 4; i++ {
			require.NoError(t, rl.Wait(ctx))
		}
		assert.Greater(t, time.Since(start), 100*time.Millisecond)

		metrics := rl.GetMetrics()
		assert.Equal(t, int64(9), metrics.TotalRequests)
		assert.Greater(t, metrics.BlockedRequests, int64(0))
	})

	t.Run("unlimited", func(t *testing.T) {
		rl := NewRateLimiter(&RateLimiterConfig{RateLimit: 0})
		start := time.Now()
		for i := 0; i < 1000; i++ {
			require.NoError(t, rl.Wait(context.Background()))
		}
		assert.Less(t, time.Since(start), 100*time.Millisecond)
		assert.Zero(t, rl.GetMetrics().BlockRate())
	})

	t.Run("context cancellation", func(t *testing.T) {
		rl := NewRateLimiter(&RateLimiterConfig{RateLimit: 1, BurstSize: 1})
		ctx, cancel := context.WithCancel(context.Background())

		require.NoError(t, rl.Wait(ctx))
		cancel()

		err := rl.Wait(ctx)
		require.Error(t, err)
		assert.Equal(t, errors.ErrorTypeContext, errors.GetErrorType(err))
	})

	t.Run("control calls have their own budget", func(t *testing.T) {
		rl := NewRateLimiter(&RateLimiterConfig{RateLimit: 1, BurstSize: 1, ControlRateLimit: 2})
		ctx := context.Background()

		require.NoError(t, rl.Wait(ctx))
		start := time.Now()
		require.NoError(t, rl.WaitForControl(ctx))
		require.NoError(t, rl.WaitForControl(ctx))
		assert.Less(t, time.Since(start), 100*time.Millisecond)
	})
}

func TestAdaptiveRateLimiter(t *testing.T) {
	arl := NewAdaptiveRateLimiter(&RateLimiterConfig{RateLimit: 8, BurstSize: 8})
	arl.recoveryInterval = 0

	arl.RecordRateLimitError()
	assert.Equal(t, 8, arl.GetCurrentRateLimit(), "a single 429 is tolerated")

	arl.RecordRateLimitError()
	assert.Equal(t, 4, arl.GetCurrentRateLimit())

	arl.RecordSuccess()
	assert.Equal(t, 5, arl.GetCurrentRateLimit())

	for i := 0; i < 10; i++ {
		arl.RecordSuccess()
	}
	assert.Equal(t, 8, arl.GetCurrentRateLimit(), "recovery stops at the configured rate")
}
