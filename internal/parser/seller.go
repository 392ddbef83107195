package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/svanlent/seller-scraper/internal/models"
)

// emailPattern is deliberately permissive; candidates are filtered afterwards
// against the exclusion list.
var emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)

// Options carries the label tables and filters the extractor matches against.
// They are constructor parameters rather than package globals so tests can
// vary them per case.
type Options struct {
	// Label variants (lowercased, colon-stripped) that promote a harvested
	// pair to the corresponding named field.
	EmailLabels   []string
	CompanyLabels []string
	AddressLabels []string
	ZipLabels     []string
	CityLabels    []string
	KvkLabels     []string
	VatLabels     []string

	// Substrings that disqualify an email candidate found by the page-wide
	// scan: monitoring domains, no-reply senders, the marketplace's own
	// support addresses, placeholder domains and retina-image suffixes.
	ExcludedEmailPatterns []string
}

// DefaultOptions returns the label tables and exclusion list observed on the
// marketplace's profile pages. Labels cover the four page locales.
func DefaultOptions() Options {
	return Options{
		EmailLabels: []string{
			"e-mailadres", "e-mail", "email", "e-mail-adresse", "e-mailadresse", "adresse e-mail", "courriel",
		},
		CompanyLabels: []string{
			"bedrijfsnaam", "company name", "firmenname", "raison sociale",
		},
		AddressLabels: []string{
			"adres", "address", "anschrift", "adresse", "straat en huisnummer",
		},
		ZipLabels: []string{
			"postcode", "zip code", "postal code", "postleitzahl", "code postal",
		},
		CityLabels: []string{
			"plaats", "stad", "city", "ort", "ville",
		},
		KvkLabels: []string{
			"kvk-nummer", "kvk nummer", "kvk", "chamber of commerce number", "chamber of commerce",
			"handelsregisternummer", "registre du commerce",
		},
		VatLabels: []string{
			"btw-nummer", "btw nummer", "btw-id", "vat number", "vat id",
			"ust-idnr", "umsatzsteuer-identifikationsnummer", "numéro de tva", "tva",
		},
		ExcludedEmailPatterns: []string{
			"sentry.io", "sentry-next.wixpress.com", "wixpress.com",
			"newrelic.com", "nr-data.net",
			"noreply", "no-reply", "no_reply", "donotreply",
			"example.com", "example.org", "example.net", "domain.com", "email.com",
			"klantenservice@", "customerservice@",
			"@2x.", "@3x.",
		},
	}
}

// SellerParser turns a raw profile page into a SellerRecord. Parsing is pure:
// no network, no storage, deterministic for identical input.
type SellerParser struct {
	opts Options

	ratingPatterns  []*regexp.Regexp
	headingSelector []string
	kvkPattern      *regexp.Regexp
	vatPattern      *regexp.Regexp
}

func NewSellerParser(opts Options) *SellerParser {
	return &SellerParser{
		opts: opts,
		ratingPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)rating:?\s*(\d+(?:[.,]\d+)?)\s+out of\s+(\d+(?:[.,]\d+)?)\s+stars?(?:\s+based on\s+([\d.,]+)\s+reviews?)?`),
			regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s+van de\s+(\d+(?:[.,]\d+)?)\s+sterren(?:\s+uit\s+([\d.,]+)\s+reviews?)?`),
			regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s+von\s+(\d+(?:[.,]\d+)?)\s+sternen(?:\s+aus\s+([\d.,]+)\s+bewertungen)?`),
			regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s+sur\s+(\d+(?:[.,]\d+)?)\s+étoiles(?:\s+sur la base de\s+([\d.,]+)\s+avis)?`),
		},
		headingSelector: []string{
			`h1[data-test="seller-name"]`,
			"h1",
			"h2",
		},
		kvkPattern: regexp.MustCompile(`(?i)\b(?:kvk(?:[ -]?(?:nummer|nr\.?|no\.?))?|chamber of commerce(?: number| no\.?)?|handelsregister(?:nummer)?|registre du commerce|rcs)\b[.:\s]*([0-9A-Za-z]{4,})`),
		vatPattern: regexp.MustCompile(`(?i)\b(?:btw(?:[ -]?(?:nummer|nr\.?|id))?|vat(?: number| no\.?| id)?|ust[-. ]?id(?:nr)?\.?|umsatzsteuer[sn]?[ -]?id(?:entifikationsnummer)?|tva)\b[.:\s]*([A-Za-z]{2}[0-9A-Za-z.]{4,})`),
	}
}

// labeledPair is one harvested label/value pair, in document order.
type labeledPair struct {
	label string
	value string
}

// sellerPage bundles the parsed views of one page so each field chain can
// read from whichever source it needs without re-parsing.
type sellerPage struct {
	raw      string
	doc      *goquery.Document
	embedded *models.EmbeddedSellerData
	pairs    []labeledPair
}

// Parse assembles one SellerRecord from the raw page text. Extraction never
// fails on missing data; absence of a field is always representable. The only
// error case is markup that cannot be tokenized at all.
func (p *SellerParser) Parse(page string, sellerID int64) (*models.SellerRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page markup: %w", err)
	}

	sp := &sellerPage{
		raw:      page,
		doc:      doc,
		embedded: ExtractEmbedded(page),
		pairs:    harvestPairs(doc),
	}

	record := models.NewSellerRecord(sellerID)

	// Every harvested pair is retained in extras, promoted or not.
	for _, pair := range sp.pairs {
		record.Extras[pair.label] = pair.value
	}

	p.extractRating(sp, record)

	record.BusinessName = firstNonEmpty(
		func() string { return Clean(embeddedName(sp.embedded)) },
		func() string { return p.extractHeading(doc) },
	)

	record.Phone = firstNonEmpty(
		func() string { return sanitizeContact(Clean(embeddedPhone(sp.embedded))) },
		func() string { return p.extractTelLink(doc) },
	)

	record.Email = firstNonEmpty(
		func() string { return sanitizeContact(Clean(embeddedEmail(sp.embedded))) },
		func() string { return p.emailFromPairs(sp) },
		func() string { return p.scanEmail(sp.raw) },
	)

	record.CompanyName = sp.pairValue(p.opts.CompanyLabels)
	record.Address = sp.pairValue(p.opts.AddressLabels)
	record.ZipCode = sp.pairValue(p.opts.ZipLabels)
	record.City = sp.pairValue(p.opts.CityLabels)

	imprint := embeddedImprint(sp.embedded)
	record.KvkNumber = firstNonEmpty(
		func() string { return sp.pairValue(p.opts.KvkLabels) },
		func() string { return matchImprint(p.kvkPattern, imprint) },
	)
	record.VatNumber = firstNonEmpty(
		func() string { return sp.pairValue(p.opts.VatLabels) },
		func() string { return matchImprint(p.vatPattern, imprint) },
	)

	collectEmbeddedExtras(sp.embedded, record)

	return record, nil
}

// firstNonEmpty evaluates extraction sources in order and returns the first
// non-empty result. Every field chain goes through here so the fallback
// ordering lives in exactly one place per field.
func firstNonEmpty(sources ...func() string) string {
	for _, source := range sources {
		if value := source(); value != "" {
			return value
		}
	}
	return ""
}

// harvestPairs walks the definition-list markup once and collects every label
// element followed by a value element, in document order.
func harvestPairs(doc *goquery.Document) []labeledPair {
	var pairs []labeledPair
	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		dd := dt.NextFiltered("dd")
		if dd.Length() == 0 {
			return
		}
		label := Clean(dt.Text())
		value := Clean(dd.Text())
		if label == "" || value == "" {
			return
		}
		pairs = append(pairs, labeledPair{label: label, value: value})
	})
	return pairs
}

// pairValue returns the value of the last harvested pair whose folded label
// equals one of the given variants. Last wins, consistent with duplicate
// labels overwriting earlier ones in extras.
func (sp *sellerPage) pairValue(labels []string) string {
	var value string
	for _, pair := range sp.pairs {
		folded := foldLabel(pair.label)
		for _, label := range labels {
			if folded == label {
				value = pair.value
				break
			}
		}
	}
	return value
}

func foldLabel(label string) string {
	return strings.TrimSpace(strings.TrimSuffix(strings.ToLower(label), ":"))
}

func (p *SellerParser) extractRating(sp *sellerPage, record *models.SellerRecord) {
	for _, text := range ratingCandidates(sp.doc) {
		for _, pattern := range p.ratingPatterns {
			matches := pattern.FindStringSubmatch(text)
			if len(matches) < 3 {
				continue
			}
			rating, ok := parseDecimal(matches[1])
			if !ok {
				continue
			}
			outOf, ok := parseDecimal(matches[2])
			if !ok || outOf <= 0 || rating < 0 || rating > outOf {
				continue
			}
			record.Rating = &rating
			record.RatingOutOf = &outOf
			if len(matches) >= 4 {
				if count, ok := parseCount(matches[3]); ok {
					record.ReviewCount = &count
				}
			}
			break
		}
		if record.Rating != nil {
			break
		}
	}

	// Embedded data fills whatever the accessibility text did not provide.
	if sp.embedded == nil || sp.embedded.Rating == nil {
		return
	}
	emb := sp.embedded.Rating
	if record.Rating == nil && emb.Value != nil {
		value := *emb.Value
		record.Rating = &value
	}
	if record.RatingOutOf == nil && emb.BestRating != nil {
		outOf := *emb.BestRating
		record.RatingOutOf = &outOf
	}
	if record.ReviewCount == nil && emb.ReviewCount != nil && *emb.ReviewCount >= 0 {
		count := *emb.ReviewCount
		record.ReviewCount = &count
	}
}

// ratingCandidates collects the accessibility strings the rating phrasing
// lives in: aria-labels and visually hidden spans.
func ratingCandidates(doc *goquery.Document) []string {
	var texts []string
	doc.Find("[aria-label]").Each(func(_ int, s *goquery.Selection) {
		if value, ok := s.Attr("aria-label"); ok && value != "" {
			texts = append(texts, value)
		}
	})
	doc.Find(".visually-hidden, .sr-only, .screen-reader-only").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			texts = append(texts, text)
		}
	})
	return texts
}

func (p *SellerParser) extractHeading(doc *goquery.Document) string {
	for _, selector := range p.headingSelector {
		if text := Clean(doc.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func (p *SellerParser) extractTelLink(doc *goquery.Document) string {
	href, ok := doc.Find(`a[href^="tel:"]`).First().Attr("href")
	if !ok {
		return ""
	}
	return sanitizeContact(Clean(strings.TrimPrefix(href, "tel:")))
}

// emailFromPairs promotes a labeled pair to the email field only when the
// value actually looks like an address.
func (p *SellerParser) emailFromPairs(sp *sellerPage) string {
	value := sp.pairValue(p.opts.EmailLabels)
	if !strings.Contains(value, "@") {
		return ""
	}
	return value
}

// scanEmail runs the permissive pattern over the whole page and returns the
// first candidate that survives the exclusion list. Candidates carrying
// stripped unicode escapes ("u0026" and friends) are dropped too.
func (p *SellerParser) scanEmail(raw string) string {
	for _, candidate := range emailPattern.FindAllString(raw, -1) {
		lower := strings.ToLower(candidate)
		if strings.Contains(lower, "u00") {
			continue
		}
		if p.emailExcluded(lower) {
			continue
		}
		return candidate
	}
	return ""
}

func (p *SellerParser) emailExcluded(lower string) bool {
	for _, pattern := range p.opts.ExcludedEmailPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func matchImprint(pattern *regexp.Regexp, imprint string) string {
	if imprint == "" {
		return ""
	}
	matches := pattern.FindStringSubmatch(imprint)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// collectEmbeddedExtras surfaces the embedded-only values into extras under
// stable keys, alongside the harvested original-language labels.
func collectEmbeddedExtras(embedded *models.EmbeddedSellerData, record *models.SellerRecord) {
	if embedded == nil {
		return
	}
	setExtra(record, "status", Clean(embedded.Status))
	if contact := embedded.Contact; contact != nil {
		setExtra(record, "fax", sanitizeContact(Clean(contact.Fax)))
		setExtra(record, "serviceHours", Clean(contact.ServiceHours))
	}
	if legal := embedded.Legal; legal != nil {
		setExtra(record, "termsUrl", Clean(legal.TermsURL))
		setExtra(record, "imprint", Clean(legal.Imprint))
		if legal.Consent != nil {
			record.Extras["consent"] = strconv.FormatBool(*legal.Consent)
		}
		if legal.DataProtection != nil {
			record.Extras["dataProtection"] = strconv.FormatBool(*legal.DataProtection)
		}
	}
	setExtra(record, "shipping", shippingSummary(embedded.Terms))
}

func setExtra(record *models.SellerRecord, key, value string) {
	if value == "" {
		return
	}
	record.Extras[key] = value
}

// shippingSummary renders the per-country shipping terms as one string:
// non-empty parts of each entry joined with " - ", entries joined with "; ".
func shippingSummary(terms []models.ShippingTerm) string {
	var entries []string
	for _, term := range terms {
		var parts []string
		if country := Clean(term.Country); country != "" {
			parts = append(parts, country)
		}
		if shippingType := Clean(term.Type); shippingType != "" {
			parts = append(parts, shippingType)
		}
		if term.FreeFrom != nil {
			amount := strconv.FormatFloat(term.FreeFrom.Amount, 'f', -1, 64)
			parts = append(parts, strings.TrimSpace(amount+" "+term.FreeFrom.Currency))
		}
		if len(parts) > 0 {
			entries = append(entries, strings.Join(parts, " - "))
		}
	}
	return strings.Join(entries, "; ")
}

// sanitizeContact rejects the placeholder sentinels the page emits for
// missing contact data.
func sanitizeContact(value string) string {
	switch strings.ToLower(value) {
	case "undefined", "null":
		return ""
	}
	return value
}

func parseDecimal(s string) (float64, bool) {
	s = strings.Replace(strings.TrimSpace(s), ",", ".", 1)
	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// parseCount strips grouping separators before parsing, so "1.234" and
// "1,234" both yield 1234.
func parseCount(s string) (int, bool) {
	s = strings.NewReplacer(".", "", ",", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	count, err := strconv.Atoi(s)
	if err != nil || count < 0 {
		return 0, false
	}
	return count, true
}

func embeddedName(embedded *models.EmbeddedSellerData) string {
	if embedded == nil {
		return ""
	}
	return embedded.Name
}

func embeddedPhone(embedded *models.EmbeddedSellerData) string {
	if embedded == nil || embedded.Contact == nil {
		return ""
	}
	return embedded.Contact.Phone
}

func embeddedEmail(embedded *models.EmbeddedSellerData) string {
	if embedded == nil || embedded.Contact == nil {
		return ""
	}
	return embedded.Contact.Email
}

func embeddedImprint(embedded *models.EmbeddedSellerData) string {
	if embedded == nil || embedded.Legal == nil {
		return ""
	}
	return Clean(embedded.Legal.Imprint)
}
