package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/artisan-coupons/internal/domain/coupon"
)

// listActive returns the coupons shown to shoppers.
func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.catalog.ListActive(r.Context())
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range coupons {
			encodeCoupon(e, &coupons[i], false)
		}
		e.ArrEnd()
	})
}

// validate reports whether a code applies to an order. Rejections are a
// normal 200 response carrying the reason.
func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.orderRequest(w, r)
	if !ok {
		return
	}
	res, err := h.engine.Validate(r.Context(), req.Code, req.Order)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeResult(w, res)
}

// redeem validates and records the redemption in one step.
func (h *Handler) redeem(w http.ResponseWriter, r *http.Request) {
	req, ok := h.orderRequest(w, r)
	if !ok {
		return
	}
	res, err := h.engine.ValidateAndApply(r.Context(), req.Code, req.Order)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	// A valid result from ValidateAndApply is already recorded.
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encodeResultFields(e, res)
		e.FieldStart("applied")
		e.Bool(res.Valid)
		e.ObjEnd()
	})
}

// apply records a redemption for a previously validated code.
func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	b, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := decodeApplyRequest(b)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	applied, err := h.engine.Apply(r.Context(), req.Code, req.UserID)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("applied")
		e.Bool(applied)
		e.ObjEnd()
	})
}

// reserve validates and, when approved, issues a reservation token.
func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	req, ok := h.orderRequest(w, r)
	if !ok {
		return
	}
	res, rsv, err := h.engine.Reserve(r.Context(), req.Code, req.Order)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encodeResultFields(e, res)
		if rsv != nil {
			e.FieldStart("reservation")
			e.ObjStart()
			e.FieldStart("token")
			e.Str(rsv.Token)
			e.FieldStart("expiresAt")
			e.Str(rsv.ExpiresAt.UTC().Format(time.RFC3339))
			e.ObjEnd()
		}
		e.ObjEnd()
	})
}

// commit redeems a reservation token.
func (h *Handler) commit(w http.ResponseWriter, r *http.Request) {
	applied, err := h.engine.Commit(r.Context(), r.PathValue("token"))
	if err != nil {
		if errors.Is(err, coupon.ErrReservationNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("applied")
		e.Bool(applied)
		e.ObjEnd()
	})
}

func (h *Handler) orderRequest(w http.ResponseWriter, r *http.Request) (orderRequest, bool) {
	b, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return orderRequest{}, false
	}
	req, err := decodeOrderRequest(b)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return orderRequest{}, false
	}
	return req, true
}

// writeEngineError maps validation errors to status codes.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, coupon.ErrInvalidOrder) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeInternal(w, r, err)
}

func writeResult(w http.ResponseWriter, res coupon.Result) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encodeResultFields(e, res)
		e.ObjEnd()
	})
}
