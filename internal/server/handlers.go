package server

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vishalSecmark/tradewebx-sub002/internal/errors"
	"github.com/vishalSecmark/tradewebx-sub002/internal/parser"
	"github.com/vishalSecmark/tradewebx-sub002/internal/queue"
	"github.com/vishalSecmark/tradewebx-sub002/internal/report"
	"github.com/vishalSecmark/tradewebx-sub002/internal/state"
)

// keepAlive is the interval of SSE comment frames on an idle stream.
const keepAlive = 15 * time.Second

func (s *Server) getQueue(c *gin.Context) {
	ok(c, "", s.queue.Snapshot())
}

func (s *Server) getStats(c *gin.Context) {
	ok(c, "", s.queue.Stats())
}

func (s *Server) getItem(c *gin.Context) {
	it, err := s.queue.Item(c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, "", it)
}

// streamEvents sends the current snapshot, then every queue event until
// the client goes away.
func (s *Server) streamEvents(c *gin.Context) {
	events, unsubscribe := s.queue.Events()
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("snapshot", s.queue.Snapshot())
	c.Writer.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case e, open := <-events:
			if !open {
				return false
			}
			c.SSEvent(e.Type.String(), e)
			return true
		case <-ticker.C:
			_, _ = io.WriteString(w, ": keep-alive\n\n")
			return true
		}
	})
}

func (s *Server) pauseQueue(c *gin.Context) {
	if err := s.queue.Pause(c.Request.Context()); err != nil {
		failErr(c, err)
		return
	}
	ok(c, "queue paused", s.queue.Stats())
}

func (s *Server) resumeQueue(c *gin.Context) {
	if err := s.queue.Resume(c.Request.Context()); err != nil {
		failErr(c, err)
		return
	}
	ok(c, "queue resumed", s.queue.Stats())
}

type retryRequest struct {
	// Path re-attaches the file from the server's disk before retrying.
	Path string `json:"path"`
}

func (s *Server) retryItem(c *gin.Context) {
	id := c.Param("id")

	var req retryRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	ctx := c.Request.Context()
	if req.Path != "" {
		fh, err := parser.OpenFile(req.Path)
		if err != nil {
			failErr(c, err)
			return
		}
		if err := s.queue.ReattachFile(ctx, id, fh); err != nil {
			failErr(c, err)
			return
		}
	}

	if err := s.queue.RetryItem(ctx, id); err != nil {
		failErr(c, err)
		return
	}
	it, err := s.queue.Item(id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, "item re-queued", it)
}

func (s *Server) removeItem(c *gin.Context) {
	if err := s.queue.RemoveItem(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	ok(c, "item removed", nil)
}

func (s *Server) clearCompleted(c *gin.Context) {
	n, err := s.queue.ClearCompleted(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, fmt.Sprintf("%d item(s) removed", n), gin.H{"removed": n})
}

func (s *Server) clearAll(c *gin.Context) {
	n, err := s.queue.ClearAll(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, fmt.Sprintf("%d item(s) removed", n), gin.H{"removed": n})
}

func attachment(c *gin.Context, name string) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Header("Content-Type", report.ContentType(name))
}

func (s *Server) failedChunksCSV(c *gin.Context) {
	it, err := s.queue.Item(c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	if len(it.FailedChunks) == 0 {
		fail(c, http.StatusNotFound, "item has no failed chunks")
		return
	}

	attachment(c, "failed_"+stem(it.FileName)+".csv")
	c.Status(http.StatusOK)
	if err := report.WriteFailedChunksCSV(c.Writer, it.Headers, it.FailedChunks); err != nil {
		s.logger.Error(err, "Failed to write failed chunks", "item", it.ID)
	}
}

func (s *Server) loadReports(c *gin.Context) ([]report.FileReport, bool) {
	if s.reports == nil {
		fail(c, http.StatusNotFound, "report history is not available")
		return nil, false
	}
	stored, err := s.reports.ListReports(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return nil, false
	}
	return report.FromStoredList(stored), true
}

func (s *Server) itemReportCSV(c *gin.Context) {
	if s.reports == nil {
		fail(c, http.StatusNotFound, "report history is not available")
		return
	}
	stored, err := s.reports.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			fail(c, http.StatusNotFound, "report not found")
			return
		}
		failErr(c, err)
		return
	}

	r := report.FromStored(stored)
	attachment(c, stem(r.FileName)+"_report.csv")
	c.Status(http.StatusOK)
	if err := report.WriteFileCSV(c.Writer, r); err != nil {
		s.logger.Error(err, "Failed to write item report", "item", r.ItemID)
	}
}

func (s *Server) listReports(c *gin.Context) {
	reports, found := s.loadReports(c)
	if !found {
		return
	}
	ok(c, "", reports)
}

func (s *Server) reportsCSV(c *gin.Context) {
	reports, found := s.loadReports(c)
	if !found {
		return
	}
	attachment(c, "import_errors.csv")
	c.Status(http.StatusOK)
	if err := report.WriteCombinedCSV(c.Writer, reports); err != nil {
		s.logger.Error(err, "Failed to write report CSV")
	}
}

func (s *Server) reportsXLSX(c *gin.Context) {
	reports, found := s.loadReports(c)
	if !found {
		return
	}
	attachment(c, "import_errors.xlsx")
	c.Status(http.StatusOK)
	if err := report.WriteXLSX(c.Writer, reports); err != nil {
		s.logger.Error(err, "Failed to write report workbook")
	}
}

type addFilesRequest struct {
	Paths   []string          `json:"paths" binding:"required,min=1"`
	Filters map[string]string `json:"filters"`
}

// addFiles enqueues files that already exist on the server's disk.
func (s *Server) addFiles(c *gin.Context) {
	var req addFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "paths is required")
		return
	}
	if s.targets == nil {
		fail(c, http.StatusServiceUnavailable, "import targets are not configured")
		return
	}

	ctx := c.Request.Context()
	enabled, all, err := s.targets(ctx)
	if err != nil {
		failErr(c, err)
		return
	}

	var files []parser.FileHandle
	var rejected []queue.Rejected
	for _, p := range req.Paths {
		fh, err := parser.OpenFile(p)
		if err != nil {
			rejected = append(rejected, queue.Rejected{FileName: p, Reason: errors.Message(err)})
			continue
		}
		files = append(files, fh)
	}

	res, err := s.queue.AddFiles(ctx, files, enabled, all, req.Filters)
	if err != nil {
		failErr(c, err)
		return
	}
	res.Rejected = append(rejected, res.Rejected...)
	ok(c, fmt.Sprintf("%d file(s) queued", len(res.Items)), res)
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
