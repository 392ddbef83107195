package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullProfilePage = `<!DOCTYPE html>
<html lang="nl">
<head>
<title>TechVoordeel | Verkoper</title>
<script>
window.__PROFILE__ = {"type":"SellerProfile","id":"90001234","name":"TechVoordeel B.V.","status":"active","contact":{"email":"info@techvoordeel.nl","phoneNumber":"+31 20 123 4567","faxNumber":"+31 20 123 4568","serviceHours":"ma-vr 9:00-17:00"},"legal":{"imprint":"KvK-nummer: 34567890, BTW-nummer: NL001234567B01","generalTermsUrl":"https://techvoordeel.nl/voorwaarden","consent":true,"dataProtection":false},"rating":{"value":4.6,"bestRating":5,"reviewCount":1520},"shippingTerms":[{"country":"NL","type":"standard","freeFrom":{"amount":20,"currency":"EUR"}},{"country":"BE","type":"standard"}]};
</script>
</head>
<body>
<h1 data-test="seller-name">TechVoordeel</h1>
<span class="visually-hidden">Rating: 4.5 out of 5 stars based on 1.503 reviews</span>
<a href="tel:+31209999999">Bel ons</a>
<dl>
<dt>Bedrijfsnaam</dt><dd>TechVoordeel B.V.</dd>
<dt>Adres</dt><dd>Keizersgracht 123</dd>
<dt>Postcode</dt><dd>1015 CJ</dd>
<dt>Plaats</dt><dd>Amsterdam</dd>
<dt>KvK-nummer</dt><dd>34567890</dd>
<dt>BTW-nummer</dt><dd>NL001234567B01</dd>
<dt>Retourtermijn</dt><dd>30 dagen</dd>
</dl>
</body>
</html>`

func TestParseFullProfilePage(t *testing.T) {
	parser := NewSellerParser(DefaultOptions())

	record, err := parser.Parse(fullProfilePage, 90001234)
	require.NoError(t, err)

	assert.Equal(t, int64(90001234), record.SellerID)
	assert.Equal(t, "TechVoordeel B.V.", record.BusinessName)

	require.NotNil(t, record.Rating)
	assert.Equal(t, 4.5, *record.Rating)
	require.NotNil(t, record.RatingOutOf)
	assert.Equal(t, 5.0, *record.RatingOutOf)
	require.NotNil(t, record.ReviewCount)
	assert.Equal(t, 1503, *record.ReviewCount)

	assert.Equal(t, "+31 20 123 4567", record.Phone)
	assert.Equal(t, "info@techvoordeel.nl", record.Email)
	assert.Equal(t, "TechVoordeel B.V.", record.CompanyName)
	assert.Equal(t, "Keizersgracht 123", record.Address)
	assert.Equal(t, "1015 CJ", record.ZipCode)
	assert.Equal(t, "Amsterdam", record.City)
	assert.Equal(t, "34567890", record.KvkNumber)
	assert.Equal(t, "NL001234567B01", record.VatNumber)

	assert.Equal(t, "30 dagen", record.Extras["Retourtermijn"])
	assert.Equal(t, "active", record.Extras["status"])
	assert.Equal(t, "+31 20 123 4568", record.Extras["fax"])
	assert.Equal(t, "ma-vr 9:00-17:00", record.Extras["serviceHours"])
	assert.Equal(t, "https://techvoordeel.nl/voorwaarden", record.Extras["termsUrl"])
	assert.Equal(t, "KvK-nummer: 34567890, BTW-nummer: NL001234567B01", record.Extras["imprint"])
	assert.Equal(t, "true", record.Extras["consent"])
	assert.Equal(t, "false", record.Extras["dataProtection"])
	assert.Equal(t, "NL - standard - 20 EUR; BE - standard", record.Extras["shipping"])
	assert.Len(t, record.Extras, 15)
}

func TestParseBusinessName(t *testing.T) {
	parser := NewSellerParser(DefaultOptions())

	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{
			name:     "Embedded name wins over heading",
			html:     `<script>var p = {"type":"SellerProfile","id":"1","name":"Janssen Handel B.V."};</script><h1 data-test="seller-name">Janssen</h1>`,
			expected: "Janssen Handel B.V.",
		},
		{
			name:     "Heading when no embedded data",
			html:     `<h1 data-test="seller-name">Winkel van Piet</h1>`,
			expected: "Winkel van Piet",
		},
		{
			name:     "Plain heading fallback",
			html:     `<h2>Boekenhoek</h2>`,
			expected: "Boekenhoek",
		},
		{
			name:     "No name at all",
			html:     `<p>Pagina niet gevonden</p>`,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := parser.Parse(tt.html, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, record.BusinessName)
			assert.Equal(t, tt.expected == "", record.IsEmpty())
		})
	}
}

func TestParseRating(t *testing.T) {
	parser := NewSellerParser(DefaultOptions())

	tests := []struct {
		name    string
		html    string
		found   bool
		rating  float64
		outOf   float64
		counted bool
		reviews int
	}{
		{
			name:    "English aria label",
			html:    `<div aria-label="Rating: 3.8 out of 5 stars based on 12 reviews"></div>`,
			found:   true,
			rating:  3.8,
			outOf:   5,
			counted: true,
			reviews: 12,
		},
		{
			name:    "Dutch visually hidden text",
			html:    `<span class="sr-only">4,2 van de 5 sterren uit 87 reviews</span>`,
			found:   true,
			rating:  4.2,
			outOf:   5,
			counted: true,
			reviews: 87,
		},
		{
			name:    "German phrasing",
			html:    `<span class="visually-hidden">4,8 von 5 Sternen aus 203 Bewertungen</span>`,
			found:   true,
			rating:  4.8,
			outOf:   5,
			counted: true,
			reviews: 203,
		},
		{
			name:    "French phrasing",
			html:    `<div aria-label="4,9 sur 5 étoiles sur la base de 54 avis"></div>`,
			found:   true,
			rating:  4.9,
			outOf:   5,
			counted: true,
			reviews: 54,
		},
		{
			name:    "Rating without review count",
			html:    `<div aria-label="Rating: 4.0 out of 5 stars"></div>`,
			found:   true,
			rating:  4,
			outOf:   5,
			counted: false,
		},
		{
			name:    "Grouped review count",
			html:    `<div aria-label="Rating: 4.7 out of 5 stars based on 2,431 reviews"></div>`,
			found:   true,
			rating:  4.7,
			outOf:   5,
			counted: true,
			reviews: 2431,
		},
		{
			name:  "Rating above scale rejected",
			html:  `<div aria-label="Rating: 6 out of 5 stars"></div>`,
			found: false,
		},
		{
			name:  "No rating present",
			html:  `<h1>Winkel</h1>`,
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := parser.Parse(tt.html, 1)
			require.NoError(t, err)

			if !tt.found {
				assert.Nil(t, record.Rating)
				assert.Nil(t, record.RatingOutOf)
				assert.Nil(t, record.ReviewCount)
				return
			}

			require.NotNil(t, record.Rating)
			assert.Equal(t, tt.rating, *record.Rating)
			require.NotNil(t, record.RatingOutOf)
			assert.Equal(t, tt.outOf, *record.RatingOutOf)
			if tt.counted {
				require.NotNil(t, record.ReviewCount)
				assert.Equal(t, tt.reviews, *record.ReviewCount)
			} else {
				assert.Nil(t, record.ReviewCount)
			}
		})
	}
}

func TestParseRatingEmbeddedFill(t *testing.T) {
	parser := NewSellerParser(DefaultOptions())

	t.Run("Embedded rating when markup has none", func(t *testing.T) {
		html := `<script>var p = {"type":"SellerProfile","id":"9","name":"Winkel","rating":{"value":4.2,"bestRating":5,"reviewCount":311}};</script>`
		record, err := parser.Parse(html, 9)
		require.NoError(t, err)
		require.NotNil(t, record.Rating)
		assert.Equal(t, 4.2, *record.Rating)
		require.NotNil(t, record.RatingOutOf)
		assert.Equal(t, 5.0, *record.RatingOutOf)
		require.NotNil(t, record.ReviewCount)
		assert.Equal(t, 311, *record.ReviewCount)
	})

	t.Run("Embedded count fills partial markup rating", func(t *testing.T) {
		html := `<span class="sr-only">Rating: 4.1 out of 5 stars</span>
<script>var p = {"type":"SellerProfile","id":"9","name":"Winkel","rating":{"value":3.0,"bestRating":5,"reviewCount":200}};</script>`
		record, err := parser.Parse(html, 9)
		require.NoError(t, err)
		require.NotNil(t, record.Rating)
		assert.Equal(t, 4.1, *record.Rating)
		require.NotNil(t, record.ReviewCount)
		assert.Equal(t, 200, *record.ReviewCount)
	})
}

func TestParsePhone(t *testing.T) {
	parser := NewSellerParser(DefaultOptions())

	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{
			name:     "Embedded phone wins over tel link",
			html:     `<script>var p = {"type":"SellerProfile","id":"1","name":"W","contact":{"phoneNumber":"+31 10 200 3000"}};</script><a href="tel:+31109999999">bel</a>`,
			expected: "+31 10 200 3000",
		},
		{
			name:     "Tel link when embedded has no phone",
			html:     `<a href="tel:+31 10 999 9999">bel</a>`,
			expected: "+31 10 999 9999",
		},
		{
			name:     "Placeholder embedded phone falls through to tel link",
			html:     `<script>var p = {"type":"SellerProfile","id":"1","name":"W","contact":{"phoneNumber":"undefined"}};</script><a href="tel:+31101112222">bel</a>`,
			expected: "+31101112222",
		},
		{
			name:     "Placeholder tel target rejected",
			html:     `<a href="tel:undefined">bel</a>`,
			expected: "",
		},
		{
			name:     "Null embedded phone with no fallback",
			html:     `<script>var p = {"type":"SellerProfile","id":"1","name":"W","contact":{"phoneNumber":"null"}};</script>`,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := parser.Parse(tt.html, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, record.Phone)
		})
	}
}

func TestParseEmail(t *testing.T) {
	parser := NewSellerParser(DefaultOptions())

	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{
			name:     "Embedded contact email wins",
			html:     `<script>var p = {"type":"SellerProfile","id":"1","name":"W","contact":{"email":"info@winkel.nl"}};</script><dl><dt>E-mailadres</dt><dd>anders@winkel.nl</dd></dl>`,
			expected: "info@winkel.nl",
		},
		{
			name:     "Labeled pair when no embedded email",
			html:     `<dl><dt>E-mailadres</dt><dd>service@winkel.nl</dd></dl>`,
			expected: "service@winkel.nl",
		},
		{
			name:     "Pair without at sign falls through to page scan",
			html:     `<dl><dt>E-mail</dt><dd>op aanvraag</dd></dl><p>Mail naar verkoop@winkeltje.nl voor vragen.</p>`,
			expected: "verkoop@winkeltje.nl",
		},
		{
			name:     "Monitoring and no-reply addresses excluded from scan",
			html:     `<script>var k = "0a1b2c@sentry.io";</script><p>noreply@winkel-mail.nl</p><p>verkoop@winkel.nl</p>`,
			expected: "verkoop@winkel.nl",
		},
		{
			name:     "Only excluded addresses yields empty",
			html:     `<p>abc123@sentry.io en noreply@winkel.nl</p>`,
			expected: "",
		},
		{
			name:     "Mis-decoded unicode candidate dropped",
			html:     `<p>serviceu0026team@winkel.nl</p>`,
			expected: "",
		},
		{
			name:     "No email anywhere",
			html:     `<h1>Winkel</h1>`,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := parser.Parse(tt.html, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, record.Email)
		})
	}
}

func TestParseLegalFields(t *testing.T) {
	parser := NewSellerParser(DefaultOptions())

	t.Run("Labeled pairs across locales", func(t *testing.T) {
		html := `<dl>
<dt>Firmenname</dt><dd>Huber Handel GmbH</dd>
<dt>Anschrift</dt><dd>Hauptstrasse 5</dd>
<dt>Postleitzahl</dt><dd>10115</dd>
<dt>Ort</dt><dd>Berlin</dd>
<dt>Handelsregisternummer</dt><dd>HRB123456</dd>
<dt>Ust-IdNr</dt><dd>DE812345678</dd>
</dl>`
		record, err := parser.Parse(html, 5)
		require.NoError(t, err)
		assert.Equal(t, "Huber Handel GmbH", record.CompanyName)
		assert.Equal(t, "Hauptstrasse 5", record.Address)
		assert.Equal(t, "10115", record.ZipCode)
		assert.Equal(t, "Berlin", record.City)
		assert.Equal(t, "HRB123456", record.KvkNumber)
		assert.Equal(t, "DE812345678", record.VatNumber)
	})

	t.Run("Imprint fallback for registration numbers only", func(t *testing.T) {
		html := `<script>var p = {"type":"SellerProfile","id":"1","name":"Winkel","legal":{"imprint":"Gevestigd te Utrecht\nKvK-nummer: 12345678\nBTW-id: NL861234567B01"}};</script>`
		record, err := parser.Parse(html, 5)
		require.NoError(t, err)
		assert.Equal(t, "12345678", record.KvkNumber)
		assert.Equal(t, "NL861234567B01", record.VatNumber)
		assert.Empty(t, record.CompanyName)
		assert.Empty(t, record.Address)
	})

	t.Run("Pairs win over imprint", func(t *testing.T) {
		html := `<script>var p = {"type":"SellerProfile","id":"1","name":"Winkel","legal":{"imprint":"KvK: 99999999"}};</script><dl><dt>KvK-nummer</dt><dd>11111111</dd></dl>`
		record, err := parser.Parse(html, 5)
		require.NoError(t, err)
		assert.Equal(t, "11111111", record.KvkNumber)
	})
}

func TestParseExtras(t *testing.T) {
	parser := NewSellerParser(DefaultOptions())

	t.Run("Duplicate labels keep the last value", func(t *testing.T) {
		html := `<dl><dt>Retourtermijn</dt><dd>14 dagen</dd><dt>Retourtermijn</dt><dd>30 dagen</dd></dl>`
		record, err := parser.Parse(html, 3)
		require.NoError(t, err)
		assert.Equal(t, "30 dagen", record.Extras["Retourtermijn"])
	})

	t.Run("Labels without values are skipped", func(t *testing.T) {
		html := `<dl><dt>Retourtermijn</dt><dt>Verzendkosten</dt><dd>Gratis</dd></dl>`
		record, err := parser.Parse(html, 3)
		require.NoError(t, err)
		assert.NotContains(t, record.Extras, "Retourtermijn")
		assert.Equal(t, "Gratis", record.Extras["Verzendkosten"])
	})

	t.Run("Markup inside pairs is normalized", func(t *testing.T) {
		html := `<dl><dt> Leveringstijd </dt><dd><b>1</b>&nbsp;-&nbsp;<b>2</b> dagen</dd></dl>`
		record, err := parser.Parse(html, 3)
		require.NoError(t, err)
		assert.Equal(t, "1 - 2 dagen", record.Extras["Leveringstijd"])
	})

	t.Run("Promoted pairs stay in extras", func(t *testing.T) {
		html := `<dl><dt>Plaats</dt><dd>Rotterdam</dd></dl>`
		record, err := parser.Parse(html, 3)
		require.NoError(t, err)
		assert.Equal(t, "Rotterdam", record.City)
		assert.Equal(t, "Rotterdam", record.Extras["Plaats"])
	})
}

func TestParseDeterminism(t *testing.T) {
	parser := NewSellerParser(DefaultOptions())

	first, err := parser.Parse(fullProfilePage, 90001234)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := parser.Parse(fullProfilePage, 90001234)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestParseEmptyPage(t *testing.T) {
	parser := NewSellerParser(DefaultOptions())

	record, err := parser.Parse(`<html><body><p>Niets gevonden</p></body></html>`, 42)
	require.NoError(t, err)
	assert.True(t, record.IsEmpty())
	assert.Equal(t, int64(42), record.SellerID)
	assert.Nil(t, record.Rating)
	assert.Empty(t, record.Email)
	assert.Empty(t, record.Extras)
}
