package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/artisan-coupons/internal/domain/coupon"
)

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.catalog.List(r.Context())
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range coupons {
			encodeCoupon(e, &coupons[i], true)
		}
		e.ArrEnd()
	})
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	b, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spec, err := DecodeSpec(b)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.catalog.Create(r.Context(), spec)
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	writeCoupon(w, http.StatusCreated, c)
}

func (h *Handler) getCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.catalog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	writeCoupon(w, http.StatusOK, c)
}

func (h *Handler) updateCoupon(w http.ResponseWriter, r *http.Request) {
	b, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	patch, err := decodePatch(b)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.catalog.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	writeCoupon(w, http.StatusOK, c)
}

func (h *Handler) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	removed, err := h.catalog.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, coupon.ErrNotFound.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggleCoupon(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := h.catalog.ToggleStatus(r.Context(), id)
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, coupon.ErrNotFound.Error())
		return
	}
	c, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	writeCoupon(w, http.StatusOK, c)
}

func (h *Handler) couponUsage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	userID := r.URL.Query().Get("userId")

	u, err := h.engine.Usage(r.Context(), id, userID)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("couponId")
		e.Str(id)
		e.FieldStart("global")
		e.Int(u.Global)
		if userID != "" {
			e.FieldStart("userId")
			e.Str(userID)
			e.FieldStart("perUser")
			e.Int(u.PerUser)
		}
		e.ObjEnd()
	})
}

func writeCoupon(w http.ResponseWriter, status int, c *coupon.Coupon) {
	writeJSON(w, status, func(e *jx.Encoder) {
		encodeCoupon(e, c, true)
	})
}

// writeCatalogError maps catalog errors to status codes.
func writeCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, coupon.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, coupon.ErrDuplicateCode), errors.Is(err, coupon.ErrVersionConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, coupon.ErrInvalidSpec):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeInternal(w, r, err)
	}
}
