package devserver

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	attdomain "kstu-mobile/internal/domain/attendance"
	"kstu-mobile/internal/pkg/response"
)

func (s *Server) handleHistory(c *gin.Context) {
	acc := s.account(c)
	if acc == nil {
		return
	}

	s.mu.Lock()
	recs := s.records[acc.User.ID]
	out := make([]attdomain.Record, len(recs))
	// Most recent first.
	for i, r := range recs {
		out[len(recs)-1-i] = r
	}
	s.mu.Unlock()

	response.Success(c, http.StatusOK, "attendance history", out)
}

func (s *Server) handleLastRecord(c *gin.Context) {
	acc := s.account(c)
	if acc == nil {
		return
	}

	s.mu.Lock()
	recs := s.records[acc.User.ID]
	var last *attdomain.Record
	if len(recs) > 0 {
		r := recs[len(recs)-1]
		last = &r
	}
	s.mu.Unlock()

	response.Success(c, http.StatusOK, "last attendance record", last)
}

// handleSubmit serves both start and finish: a caller with an open record is
// finishing, anyone else is starting. This mirrors the production endpoint.
func (s *Server) handleSubmit(c *gin.Context) {
	acc := s.account(c)
	if acc == nil {
		return
	}

	auditorium := c.PostForm("auditorium")
	geo := c.PostForm("geo")
	if geo == "" {
		response.Error(c, http.StatusBadRequest, "geo is required", nil)
		return
	}

	var photoRef string
	if file, _, err := c.Request.FormFile("image"); err == nil {
		// Dev server discards image bytes; only the reference matters.
		n, _ := io.Copy(io.Discard, file)
		file.Close()
		photoRef = "photos/" + uuid.NewString() + ".jpg"
		s.logger.Debug("received check-in photo", zap.Int64("bytes", n))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.records[acc.User.ID]
	now := time.Now()

	if len(recs) > 0 && recs[len(recs)-1].Status == attdomain.StatusStarted {
		// Finish the open record.
		rec := &recs[len(recs)-1]
		rec.FinishGeo = geo
		rec.FinishPhoto = photoRef
		rec.Status = attdomain.StatusFinished
		if started, ok := s.startTimes[rec.ID]; ok {
			rec.WorkingTime = formatWorkingTime(now.Sub(started))
			delete(s.startTimes, rec.ID)
		}

		s.hub.Bump(acc.User.ID)
		response.Success(c, http.StatusOK, "check-in finished", rec)
		return
	}

	rec := attdomain.Record{
		ID:         s.nextID,
		Date:       now.Format("2006-01-02"),
		Auditorium: auditorium,
		StartGeo:   geo,
		StartPhoto: photoRef,
		Status:     attdomain.StatusStarted,
	}
	s.nextID++
	s.startTimes[rec.ID] = now
	s.records[acc.User.ID] = append(recs, rec)

	response.Success(c, http.StatusOK, "check-in started", rec)
}

func formatWorkingTime(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%02d:%02d", h, m)
}
