package models

// SellerRecord is the normalized output for one seller ID. The ID is always
// caller-supplied; nothing on the page overrides it. Optional numeric fields
// are pointers so "absent" stays distinguishable from zero.
type SellerRecord struct {
	SellerID     int64             `json:"sellerId"`
	Rating       *float64          `json:"rating,omitempty"`
	RatingOutOf  *float64          `json:"ratingOutOf,omitempty"`
	ReviewCount  *int              `json:"reviewCount,omitempty"`
	BusinessName string            `json:"businessName"`
	Email        string            `json:"email,omitempty"`
	Phone        string            `json:"phone,omitempty"`
	CompanyName  string            `json:"companyName,omitempty"`
	Address      string            `json:"address,omitempty"`
	ZipCode      string            `json:"zipCode,omitempty"`
	City         string            `json:"city,omitempty"`
	KvkNumber    string            `json:"kvkNumber,omitempty"`
	VatNumber    string            `json:"vatNumber,omitempty"`
	Extras       map[string]string `json:"extras,omitempty"`
}

func NewSellerRecord(sellerID int64) *SellerRecord {
	return &SellerRecord{
		SellerID: sellerID,
		Extras:   make(map[string]string),
	}
}

// IsEmpty reports whether the page yielded no seller identity at all. A record
// without a business name is treated as an empty profile, not an error.
func (r *SellerRecord) IsEmpty() bool {
	return r.BusinessName == ""
}

// EmbeddedSellerData mirrors the JSON object the marketplace serializes into
// its profile pages. It is transient: consumed during record assembly, never
// persisted. Any field may be missing; consumers must fall back to markup.
type EmbeddedSellerData struct {
	Type    string           `json:"type"`
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Status  string           `json:"status,omitempty"`
	Contact *EmbeddedContact `json:"contact,omitempty"`
	Legal   *EmbeddedLegal   `json:"legal,omitempty"`
	Rating  *EmbeddedRating  `json:"rating,omitempty"`
	Terms   []ShippingTerm   `json:"shippingTerms,omitempty"`
}

type EmbeddedContact struct {
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phoneNumber,omitempty"`
	Fax          string `json:"faxNumber,omitempty"`
	ServiceHours string `json:"serviceHours,omitempty"`
}

// EmbeddedLegal carries only the legal keys record assembly reads. Named
// registration fields (company name, address, KvK, VAT) come from the markup
// and the imprint text, so the page's JSON variants of them are not decoded.
type EmbeddedLegal struct {
	Imprint        string `json:"imprint,omitempty"`
	TermsURL       string `json:"generalTermsUrl,omitempty"`
	Consent        *bool  `json:"consent,omitempty"`
	DataProtection *bool  `json:"dataProtection,omitempty"`
}

type EmbeddedRating struct {
	Value       *float64 `json:"value,omitempty"`
	BestRating  *float64 `json:"bestRating,omitempty"`
	ReviewCount *int     `json:"reviewCount,omitempty"`
}

// ShippingTerm is one per-country shipping entry from the embedded data.
type ShippingTerm struct {
	Country  string `json:"country,omitempty"`
	Type     string `json:"type,omitempty"`
	FreeFrom *Money `json:"freeFrom,omitempty"`
}

type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}
