package handler

import (
	"encoding/json"
	"net/http"

	"github.com/RoyceAzure/lab/storefront/internal/api/dto"
	"github.com/RoyceAzure/lab/storefront/internal/domain/model/command"
	"github.com/RoyceAzure/lab/storefront/internal/service"
	"github.com/RoyceAzure/rj/api"
	er "github.com/RoyceAzure/rj/util/rj_error"
)

type CheckoutHandler struct {
	checkoutService service.ICheckoutService
}

func NewCheckoutHandler(checkoutService service.ICheckoutService) *CheckoutHandler {
	if checkoutService == nil {
		panic("checkoutService cannot be nil")
	}
	return &CheckoutHandler{checkoutService: checkoutService}
}

// @Summary submit checkout
// @enqueue the order submission, the result is delivered by notification
// @Tags checkout
// @Accept json
// @Produce json
// @Param submission body command.OrderSubmission true "order submission"
// @Success 202 {object} api.Response{data=dto.SubmitResponse} "accepted"
// @Failure 400 {object} api.ResponseError{data=string} "BadRequestCode"
// @Failure 500 {object} api.ResponseError{data=string} "queue unavailable"
// @Router /checkout [post]
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var submission command.OrderSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		api.ErrorJSON(w, int(er.BadRequestCode), err, er.ErrStrMap[er.BadRequestCode])
		return
	}

	res, err := h.checkoutService.Submit(r.Context(), &submission)
	if err != nil {
		writeError(w, err)
		return
	}

	api.SuccessJSON(withStatus(w, http.StatusAccepted), dto.SubmitResponse{
		SubmissionID: res.SubmissionID,
		Status:       res.Status,
	}, nil)
}
