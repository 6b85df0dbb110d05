package handler

import (
	"net/http"
	"strconv"

	"github.com/RoyceAzure/lab/storefront/internal/api/dto"
	"github.com/RoyceAzure/lab/storefront/internal/constants"
	"github.com/RoyceAzure/lab/storefront/internal/service"
	"github.com/RoyceAzure/rj/api"
	er "github.com/RoyceAzure/rj/util/rj_error"
	"github.com/go-chi/chi/v5"
)

type OrderHandler struct {
	orderService service.IOrderService
}

func NewOrderHandler(orderService service.IOrderService) *OrderHandler {
	if orderService == nil {
		panic("orderService cannot be nil")
	}
	return &OrderHandler{orderService: orderService}
}

// @Summary list orders
// @admin sees all orders, others only their own, newest first
// @Tags order
// @Produce json
// @Param page query int false "page"
// @Param page_size query int false "page size"
// @Success 200 {object} api.Response{data=dto.OrderListDTO} "success"
// @Failure 401 {object} api.ResponseError{data=string} "UnauthenticatedCode"
// @Router /orders [get]
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", constants.DefaultPaging)
	if err != nil {
		api.ErrorJSON(w, int(er.BadRequestCode), err, er.ErrStrMap[er.BadRequestCode])
		return
	}
	pageSize, err := queryInt(r, "page_size", constants.DefaultPagingSize)
	if err != nil {
		api.ErrorJSON(w, int(er.BadRequestCode), err, er.ErrStrMap[er.BadRequestCode])
		return
	}

	res, err := h.orderService.ListOrders(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}

	orders := make([]dto.OrderDTO, 0, len(res.Orders))
	for i := range res.Orders {
		orders = append(orders, dto.ToOrderDTO(&res.Orders[i]))
	}
	api.SuccessJSON(w, dto.OrderListDTO{
		Orders:   orders,
		Total:    res.Total,
		Page:     res.Page,
		PageSize: res.PageSize,
	}, nil)
}

// @Summary get order
// @order with lines, payment info and activity log
// @Tags order
// @Produce json
// @Param code path string true "order code"
// @Success 200 {object} api.Response{data=dto.OrderDetailDTO} "success"
// @Failure 401 {object} api.ResponseError{data=string} "UnauthenticatedCode"
// @Failure 404 {object} api.ResponseError{data=string} "NotFoundCode"
// @Router /orders/{code} [get]
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		api.ErrorJSON(w, int(er.BadRequestCode), nil, er.ErrStrMap[er.BadRequestCode])
		return
	}

	detail, err := h.orderService.GetOrder(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}

	api.SuccessJSON(w, dto.OrderDetailDTO{
		OrderDTO: dto.ToOrderDTO(detail.Order),
		Payment: dto.PaymentDTO{
			Method: detail.Payment.Method,
			Status: detail.Payment.Status,
		},
		Activities: dto.ToOrderActivityDTOs(detail.Activities),
	}, nil)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
