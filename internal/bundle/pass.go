// ABOUTME: Coupon pass descriptor: schema validation and body layout
// ABOUTME: Offer as primary field, code as secondary, QR barcode, optional back fields

package bundle

import (
	"fmt"
)

// PassDescriptor describes a coupon-style pass.
type PassDescriptor struct {
	SerialNumber     string        `json:"serialNumber"`
	Description      string        `json:"description,omitempty"`
	OrganizationName string        `json:"organizationName,omitempty"`
	Coupon           CouponOptions `json:"coupon"`
}

// CouponOptions holds the coupon-specific content.
type CouponOptions struct {
	Code       string  `json:"code"`
	OfferTitle string  `json:"offerTitle"`
	QRCodeURL  string  `json:"qrCodeUrl"`
	BackFields []Field `json:"backFields,omitempty"`
}

// Barcode is a pass barcode.
type Barcode struct {
	Format          string `json:"format"`
	Message         string `json:"message"`
	MessageEncoding string `json:"messageEncoding"`
}

// CouponBody is the "coupon" structure of pass.json.
type CouponBody struct {
	PrimaryFields   []Field   `json:"primaryFields"`
	SecondaryFields []Field   `json:"secondaryFields"`
	BackFields      []Field   `json:"backFields"`
	Barcode         Barcode   `json:"barcode"`
	Barcodes        []Barcode `json:"barcodes"`
}

func (d *PassDescriptor) Kind() Kind { return KindPass }

// Validate checks required identifiers and coupon content.
func (d *PassDescriptor) Validate() error {
	if err := required("serialNumber", d.SerialNumber); err != nil {
		return err
	}
	if err := required("coupon.code", d.Coupon.Code); err != nil {
		return err
	}
	if err := required("coupon.offerTitle", d.Coupon.OfferTitle); err != nil {
		return err
	}
	if err := required("coupon.qrCodeUrl", d.Coupon.QRCodeURL); err != nil {
		return err
	}
	if err := absoluteURL("coupon.qrCodeUrl", d.Coupon.QRCodeURL); err != nil {
		return err
	}
	for i, f := range d.Coupon.BackFields {
		if err := required(fmt.Sprintf("coupon.backFields[%d].key", i), f.Key); err != nil {
			return err
		}
		if err := required(fmt.Sprintf("coupon.backFields[%d].label", i), f.Label); err != nil {
			return err
		}
	}
	return nil
}

// Body mounts the coupon layout.
func (c CouponOptions) Body() CouponBody {
	barcode := Barcode{
		Format:          "PKBarcodeFormatQR",
		Message:         c.QRCodeURL,
		MessageEncoding: "iso-8859-1",
	}
	back := c.BackFields
	if back == nil {
		back = []Field{}
	}
	return CouponBody{
		PrimaryFields:   []Field{{Key: "offer", Label: "Discount", Value: c.OfferTitle}},
		SecondaryFields: []Field{{Key: "code", Label: "Code", Value: c.Code}},
		BackFields:      back,
		Barcode:         barcode,
		Barcodes:        []Barcode{barcode},
	}
}

func (d *PassDescriptor) Fields() (map[string]any, error) {
	fields := map[string]any{
		"serialNumber": d.SerialNumber,
		"coupon":       d.Coupon.Body(),
	}
	if d.Description != "" {
		fields["description"] = d.Description
	}
	if d.OrganizationName != "" {
		fields["organizationName"] = d.OrganizationName
	}
	return fields, nil
}
