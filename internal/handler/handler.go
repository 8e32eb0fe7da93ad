// Package handler exposes the coupon catalog and engine over HTTP/JSON.
package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/artisan-coupons/internal/domain/coupon"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the public checkout endpoints and the admin catalog
// endpoints.
type Handler struct {
	catalog *coupon.Catalog
	engine  *coupon.Engine
	admin   *AdminAuth
}

// New constructs a Handler with the required domain dependencies.
func New(catalog *coupon.Catalog, engine *coupon.Engine, admin *AdminAuth) *Handler {
	return &Handler{
		catalog: catalog,
		engine:  engine,
		admin:   admin,
	}
}

// Register mounts all routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/coupons", h.listActive)
	mux.HandleFunc("POST /api/coupons/validate", h.validate)
	mux.HandleFunc("POST /api/coupons/apply", h.apply)
	mux.HandleFunc("POST /api/coupons/redeem", h.redeem)
	mux.HandleFunc("POST /api/coupons/reservations", h.reserve)
	mux.HandleFunc("POST /api/coupons/reservations/{token}/commit", h.commit)

	mux.Handle("GET /api/admin/coupons", h.admin.Require(http.HandlerFunc(h.listCoupons)))
	mux.Handle("POST /api/admin/coupons", h.admin.Require(http.HandlerFunc(h.createCoupon)))
	mux.Handle("GET /api/admin/coupons/{id}", h.admin.Require(http.HandlerFunc(h.getCoupon)))
	mux.Handle("PATCH /api/admin/coupons/{id}", h.admin.Require(http.HandlerFunc(h.updateCoupon)))
	mux.Handle("DELETE /api/admin/coupons/{id}", h.admin.Require(http.HandlerFunc(h.deleteCoupon)))
	mux.Handle("POST /api/admin/coupons/{id}/toggle", h.admin.Require(http.HandlerFunc(h.toggleCoupon)))
	mux.Handle("GET /api/admin/coupons/{id}/usage", h.admin.Require(http.HandlerFunc(h.couponUsage)))
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return b, nil
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

// writeInternal logs err and hides it from the client.
func writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
