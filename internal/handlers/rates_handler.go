package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-jewelry-orders/internal/rates"
	"github.com/imrishuroy/go-jewelry-orders/internal/validation"
)

const defaultHistoryLimit = 10

type ratesHandler struct {
	rates *rates.Service
	v     *validatorv10.Validate
	log   *zap.Logger
}

// current answers with the zero-rate record when nothing is recorded yet.
func (h *ratesHandler) current(c *gin.Context) {
	rec, err := h.rates.Current(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *ratesHandler) record(c *gin.Context) {
	var req validation.RecordRateRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	rec, err := h.rates.Record(c.Request.Context(), rates.NewRecord{
		Gold:      *req.GoldRate,
		Silver:    *req.SilverRate,
		Notes:     req.Notes,
		UpdatedBy: caller(c),
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *ratesHandler) history(c *gin.Context) {
	var q validation.HistoryQuery
	if err := validation.BindQueryAndValidate(c, &q, h.v); err != nil {
		return
	}
	if q.Limit == 0 {
		q.Limit = defaultHistoryLimit
	}
	list, err := h.rates.History(c.Request.Context(), q.Limit)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list})
}

func (h *ratesHandler) sync(c *gin.Context) {
	rec, err := h.rates.Sync(c.Request.Context(), caller(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}
