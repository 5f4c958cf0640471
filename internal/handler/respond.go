package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"eventfinder/internal/gateway"
	"eventfinder/internal/resource"
	"eventfinder/internal/session"
	"eventfinder/internal/validation"
)

// invalid answers a form that failed validation at the view boundary.
func invalid(c *gin.Context, errs validation.Errors) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "fields": errs})
}

// failed maps an operation error to a response. Backend rejections keep
// their 4xx status; everything else is reported as a gateway problem.
func failed(c *gin.Context, err error, extra gin.H) {
	body := gin.H{}
	for k, v := range extra {
		body[k] = v
	}

	if errors.Is(err, session.ErrSuperseded) || errors.Is(err, resource.ErrDiscarded) {
		body["error"] = "Superseded by a newer request"
		c.JSON(http.StatusConflict, body)
		return
	}

	f := gateway.AsFailure(err)
	body["error"] = f.Detail
	if len(f.Fields) > 0 {
		body["fields"] = f.Fields
	}

	status := http.StatusBadGateway
	switch f.Kind {
	case gateway.KindApplication:
		switch {
		case f.Status >= 400 && f.Status < 500:
			status = f.Status
		case f.Status == 0:
			status = http.StatusBadRequest
		}
	case gateway.KindStorage:
		status = http.StatusInternalServerError
	}
	c.JSON(status, body)
}
