package handler

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/artisan-coupons/internal/domain/coupon"
)

// orderRequest is the body of validate, redeem and reservation calls.
type orderRequest struct {
	Code  string
	Order coupon.Order
}

func decodeOrderRequest(b []byte) (orderRequest, error) {
	var (
		req       orderRequest
		hasAmount bool
	)
	err := jx.DecodeBytes(b).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "code":
			req.Code, err = d.Str()
		case "amount":
			req.Order.Amount, err = decodeDecimal(d)
			hasAmount = true
		case "userId":
			req.Order.UserID, err = decodeOptStr(d)
		case "categories":
			req.Order.Categories, err = decodeStrings(d)
		case "productIds":
			req.Order.ProductIDs, err = decodeStrings(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
	if err != nil {
		return orderRequest{}, err
	}

	switch {
	case req.Code == "":
		return orderRequest{}, errors.New("code is required")
	case !hasAmount:
		return orderRequest{}, errors.New("amount is required")
	case req.Order.Amount.IsNegative():
		return orderRequest{}, errors.New("amount must not be negative")
	}
	return req, nil
}

// applyRequest is the body of the apply call.
type applyRequest struct {
	Code   string
	UserID string
}

func decodeApplyRequest(b []byte) (applyRequest, error) {
	var req applyRequest
	err := jx.DecodeBytes(b).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "code":
			req.Code, err = d.Str()
		case "userId":
			req.UserID, err = decodeOptStr(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
	if err != nil {
		return applyRequest{}, err
	}
	if req.Code == "" {
		return applyRequest{}, errors.New("code is required")
	}
	return req, nil
}

// DecodeSpec parses the JSON form of a coupon definition as accepted by the
// admin API and the bulk importer.
func DecodeSpec(b []byte) (coupon.Spec, error) {
	var s coupon.Spec
	err := jx.DecodeBytes(b).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "code":
			s.Code, err = d.Str()
		case "type":
			var v string
			v, err = d.Str()
			s.Type = coupon.DiscountType(v)
		case "value":
			s.Value, err = decodeDecimal(d)
		case "minPurchase":
			s.MinPurchase, err = decodeNullDecimal(d)
		case "maxDiscount":
			s.MaxDiscount, err = decodeNullDecimal(d)
		case "validFrom":
			s.ValidFrom, err = decodeTime(d)
		case "validUntil":
			s.ValidUntil, err = decodeTime(d)
		case "usageLimit":
			s.UsageLimit, err = d.Int()
		case "userLimit":
			s.UserLimit, err = d.Int()
		case "applicableCategories":
			s.ApplicableCategories, err = decodeStrings(d)
		case "applicableProducts":
			s.ApplicableProducts, err = decodeStrings(d)
		case "status":
			var v string
			v, err = d.Str()
			s.Status = coupon.Status(v)
		case "description":
			s.Description, err = d.Str()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
	return s, err
}

func decodePatch(b []byte) (coupon.Patch, error) {
	var p coupon.Patch
	err := jx.DecodeBytes(b).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "type":
			var v string
			if v, err = d.Str(); err == nil {
				t := coupon.DiscountType(v)
				p.Type = &t
			}
		case "value":
			var v decimal.Decimal
			if v, err = decodeDecimal(d); err == nil {
				p.Value = &v
			}
		case "minPurchase":
			var v decimal.NullDecimal
			if v, err = decodeNullDecimal(d); err == nil {
				p.MinPurchase = &v
			}
		case "maxDiscount":
			var v decimal.NullDecimal
			if v, err = decodeNullDecimal(d); err == nil {
				p.MaxDiscount = &v
			}
		case "validFrom":
			var v time.Time
			if v, err = decodeTime(d); err == nil {
				p.ValidFrom = &v
			}
		case "validUntil":
			var v time.Time
			if v, err = decodeTime(d); err == nil {
				p.ValidUntil = &v
			}
		case "usageLimit":
			var v int
			if v, err = d.Int(); err == nil {
				p.UsageLimit = &v
			}
		case "userLimit":
			var v int
			if v, err = d.Int(); err == nil {
				p.UserLimit = &v
			}
		case "applicableCategories":
			var v []string
			if v, err = decodeStrings(d); err == nil {
				p.ApplicableCategories = &v
			}
		case "applicableProducts":
			var v []string
			if v, err = decodeStrings(d); err == nil {
				p.ApplicableProducts = &v
			}
		case "status":
			var v string
			if v, err = d.Str(); err == nil {
				s := coupon.Status(v)
				p.Status = &s
			}
		case "description":
			var v string
			if v, err = d.Str(); err == nil {
				p.Description = &v
			}
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
	return p, err
}

// decodeDecimal accepts both JSON numbers and numeric strings.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Decimal{}, errors.New("expected number")
	}
}

func decodeNullDecimal(d *jx.Decoder) (decimal.NullDecimal, error) {
	if d.Next() == jx.Null {
		return decimal.NullDecimal{}, d.Null()
	}
	v, err := decodeDecimal(d)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(v), nil
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, s)
}

func decodeOptStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	out := []string{}
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

func encodeNullDecimal(e *jx.Encoder, v decimal.NullDecimal) {
	if !v.Valid {
		e.Null()
		return
	}
	encodeDecimal(e, v.Decimal)
}

func encodeStrings(e *jx.Encoder, v []string) {
	e.ArrStart()
	for _, s := range v {
		e.Str(s)
	}
	e.ArrEnd()
}

// encodeCoupon writes c. The admin view adds limits, status and bookkeeping
// fields.
func encodeCoupon(e *jx.Encoder, c *coupon.Coupon, admin bool) {
	e.ObjStart()
	if admin {
		e.FieldStart("id")
		e.Str(c.ID)
	}
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("type")
	e.Str(string(c.Type))
	e.FieldStart("value")
	encodeDecimal(e, c.Value)
	e.FieldStart("minPurchase")
	encodeNullDecimal(e, c.MinPurchase)
	e.FieldStart("maxDiscount")
	encodeNullDecimal(e, c.MaxDiscount)
	e.FieldStart("validFrom")
	e.Str(c.ValidFrom.UTC().Format(time.RFC3339))
	e.FieldStart("validUntil")
	e.Str(c.ValidUntil.UTC().Format(time.RFC3339))
	e.FieldStart("applicableCategories")
	encodeStrings(e, c.ApplicableCategories)
	e.FieldStart("applicableProducts")
	encodeStrings(e, c.ApplicableProducts)
	e.FieldStart("description")
	e.Str(c.Description)
	if admin {
		e.FieldStart("usageLimit")
		e.Int(c.UsageLimit)
		e.FieldStart("userLimit")
		e.Int(c.UserLimit)
		e.FieldStart("status")
		e.Str(string(c.Status))
		e.FieldStart("version")
		e.Int(c.Version)
		e.FieldStart("createdAt")
		e.Str(c.CreatedAt.UTC().Format(time.RFC3339))
		e.FieldStart("updatedAt")
		e.Str(c.UpdatedAt.UTC().Format(time.RFC3339))
	}
	e.ObjEnd()
}

// encodeResultFields writes the fields of a validation result into an open
// object.
func encodeResultFields(e *jx.Encoder, res coupon.Result) {
	e.FieldStart("valid")
	e.Bool(res.Valid)
	e.FieldStart("reason")
	e.Str(res.Reason.String())
	e.FieldStart("message")
	e.Str(res.Message)
	e.FieldStart("discount")
	encodeDecimal(e, res.Discount)
	e.FieldStart("finalAmount")
	encodeDecimal(e, res.FinalAmount)
	if res.Coupon != nil {
		e.FieldStart("coupon")
		encodeCoupon(e, res.Coupon, false)
	}
}
