package core

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// respondError renders the flat error page. message is shown to the client as-is,
// so it must never carry internal detail.
func respondError(c *gin.Context, status int, message string) {
	renderHTML(c, status, errorPage(status, message))
}

// respondServiceError maps the error taxonomy onto a response:
// validation -> 400, not found -> 404, everything else -> logged 500.
func respondServiceError(c *gin.Context, logger *slog.Logger, op string, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		respondError(c, http.StatusBadRequest, ve.Error())
	case errors.Is(err, ErrAgendaNotFound):
		respondError(c, http.StatusNotFound, "Agenda item not found")
	default:
		logger.ErrorContext(c.Request.Context(), op, "err", err, "request_id", requestIDFrom(c))
		respondError(c, http.StatusInternalServerError, "Server error")
	}
}
