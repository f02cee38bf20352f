package services

import (
	"regexp"
	"strings"

	"github.com/ekaya-inc/edda-engine/pkg/models"
)

// piiSampleLimit is how many non-null values the value-shape detectors inspect.
const piiSampleLimit = 50

// PIIDetector classifies a column from its name and sampled values.
// values holds at most piiSampleLimit non-null values in sample order.
type PIIDetector interface {
	Name() string
	Detect(column string, values []string) (models.PIIRisk, bool)
}

// DefaultPIIDetectors returns the detectors in evaluation order.
func DefaultPIIDetectors() []PIIDetector {
	return []PIIDetector{
		nameHintDetector{},
		emailShapeDetector{},
		phoneShapeDetector{minMatches: 3},
		ssnShapeDetector{},
	}
}

// piiNameHints are matched as substrings of the lower-cased column name.
var piiNameHints = []string{"email", "phone", "mobile", "birth", "passport", "aadhar", "address", "tax_id"}

// piiNameTokens are short hints matched only as whole name tokens, so that
// "company" is not flagged for "pan". Trailing digits are ignored ("ssn4").
var piiNameTokens = []string{"dob", "ssn", "pan"}

type nameHintDetector struct{}

func (nameHintDetector) Name() string { return "name_hint" }

func (nameHintDetector) Detect(column string, _ []string) (models.PIIRisk, bool) {
	name := strings.ToLower(column)
	for _, hint := range piiNameHints {
		if strings.Contains(name, hint) {
			return models.PIIRiskHigh, true
		}
	}
	tokens := strings.FieldsFunc(name, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, tok := range tokens {
		tok = strings.TrimRight(tok, "0123456789")
		for _, hint := range piiNameTokens {
			if tok == hint {
				return models.PIIRiskHigh, true
			}
		}
	}
	return "", false
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

type emailShapeDetector struct{}

func (emailShapeDetector) Name() string { return "email_shape" }

func (emailShapeDetector) Detect(_ string, values []string) (models.PIIRisk, bool) {
	for _, v := range values {
		if emailPattern.MatchString(strings.TrimSpace(v)) {
			return models.PIIRiskHigh, true
		}
	}
	return "", false
}

var phonePattern = regexp.MustCompile(`^\+?[\d\s().-]{10,24}$`)

// looksLikePhone accepts 10 to 15 digits with common separators. It requires
// a separator or a leading +, so bare integer ids are not phones.
func looksLikePhone(v string) bool {
	v = strings.TrimSpace(v)
	if !phonePattern.MatchString(v) {
		return false
	}
	digits := 0
	for _, r := range v {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 10 || digits > 15 {
		return false
	}
	return strings.HasPrefix(v, "+") || strings.ContainsAny(v, " .-()")
}

type phoneShapeDetector struct {
	minMatches int
}

func (phoneShapeDetector) Name() string { return "phone_shape" }

func (d phoneShapeDetector) Detect(_ string, values []string) (models.PIIRisk, bool) {
	matches := 0
	for _, v := range values {
		if looksLikePhone(v) {
			matches++
			if matches >= d.minMatches {
				return models.PIIRiskHigh, true
			}
		}
	}
	return "", false
}

var ssnPattern = regexp.MustCompile(`^\d{3}-\d{2}-\d{4}$`)

type ssnShapeDetector struct{}

func (ssnShapeDetector) Name() string { return "ssn_shape" }

func (ssnShapeDetector) Detect(_ string, values []string) (models.PIIRisk, bool) {
	for _, v := range values {
		if ssnPattern.MatchString(strings.TrimSpace(v)) {
			return models.PIIRiskHigh, true
		}
	}
	return "", false
}
