package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/iancossa/attendance-fullstack/internal/alert"
	"github.com/iancossa/attendance-fullstack/internal/queue"
)

type alertRequest struct {
	StudentID string          `json:"student_id" binding:"required"`
	Channels  []alert.Channel `json:"channels"`
	Async     bool            `json:"async"`
}

// channels returns the requested channels, or all of them.
func (r alertRequest) channels() ([]alert.Channel, error) {
	if len(r.Channels) == 0 {
		return alert.Channels, nil
	}
	for _, ch := range r.Channels {
		if !ch.Valid() {
			return nil, fmt.Errorf("%w: %q", alert.ErrUnknownChannel, ch)
		}
	}
	return r.Channels, nil
}

type deliveryResult struct {
	Channel     alert.Channel `json:"channel"`
	MessageID   string        `json:"message_id"`
	Recipient   string        `json:"recipient"`
	Placeholder bool          `json:"placeholder"`
	Status      string        `json:"status"`
	Error       string        `json:"error,omitempty"`
}

func registerAlertRoutes(r *gin.RouterGroup, d Deps) {
	g := r.Group("/alerts")
	g.POST("/preview", previewAlerts(d))
	g.POST("/send", sendAlerts(d))
}

// compose renders the requested channels for the student in the body.
func compose(c *gin.Context, d Deps) (alertRequest, []alert.Message, bool) {
	var req alertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return req, nil, false
	}
	chans, err := req.channels()
	if err != nil {
		respondError(c, d.Logger, err)
		return req, nil, false
	}
	stu, err := d.Attendance.AlertStudent(c.Request.Context(), req.StudentID)
	if err != nil {
		respondError(c, d.Logger, err)
		return req, nil, false
	}
	msgs := make([]alert.Message, 0, len(chans))
	for _, ch := range chans {
		msg, err := d.Composer.Compose(ch, stu)
		if err != nil {
			respondError(c, d.Logger, err)
			return req, nil, false
		}
		msgs = append(msgs, msg)
	}
	return req, msgs, true
}

func previewAlerts(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, msgs, ok := compose(c, d)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": msgs})
	}
}

// sendAlerts delivers each composed message. Placeholder recipients are reported, not sent.
// With async set, deliverable messages are queued for the worker instead.
func sendAlerts(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, msgs, ok := compose(c, d)
		if !ok {
			return
		}
		async := req.Async && d.Queue != nil
		ctx := c.Request.Context()
		results := make([]deliveryResult, 0, len(msgs))
		status := http.StatusOK
		if async {
			status = http.StatusAccepted
		}
		for _, msg := range msgs {
			res := deliveryResult{Channel: msg.Channel, MessageID: msg.ID, Recipient: msg.Recipient, Placeholder: msg.Placeholder}
			var err error
			switch {
			case msg.Placeholder:
				err = alert.ErrPlaceholderRecipient
			case async:
				var qm queue.Message
				if qm, err = queue.NewMessage(queue.TypeAlert, msg); err == nil {
					err = d.Queue.Publish(ctx, qm)
				}
				if err == nil {
					res.Status = "queued"
				}
			default:
				err = d.Alerts.Send(ctx, msg)
				if err == nil {
					res.Status = "sent"
				}
			}
			if err != nil {
				res.Status = "failed"
				if msg.Placeholder {
					res.Status = "skipped"
				}
				res.Error = err.Error()
			}
			results = append(results, res)
		}
		c.JSON(status, gin.H{"student_id": req.StudentID, "results": results})
	}
}
