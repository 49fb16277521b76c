// Package classify maps the free-text fields of a crime record onto a fixed
// category, a severity, and an alert-eligibility decision. Everything here is
// deterministic regexp matching over a lowercased concatenation of the text
// fields; the optional LLM reviewer in llm.go never feeds back into these
// results.
package classify

import (
	"regexp"
	"strings"
)

type Category string

const (
	CategoryViolent    Category = "violent"
	CategoryBurglary   Category = "burglary"
	CategoryProperty   Category = "property"
	CategoryTraffic    Category = "traffic"
	CategoryDrugs      Category = "drugs"
	CategorySuspicious Category = "suspicious"
	CategoryFire       Category = "fire"
	CategoryMedical    Category = "medical"
	CategoryOther      Category = "other"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

type Tier string

const (
	TierNone Tier = "none"
	TierNear Tier = "near"
	TierWide Tier = "wide"
)

type Result struct {
	Category      Category `json:"category"`
	Severity      Severity `json:"severity"`
	AlertEligible bool     `json:"alertEligible"`
	AlertTier     Tier     `json:"alertTier"`
}

// CategoryRule is one step of the first-match-wins cascade. Exclude, when
// set, vetoes a Match hit and lets evaluation fall through to later rules.
type CategoryRule struct {
	Name     string
	Match    *regexp.Regexp
	Exclude  *regexp.Regexp
	Category Category
}

// Rules carries the full immutable rule configuration. The alert patterns
// are independent of the display-category cascade: suspicious-person,
// prowler and trespass calls are high-volume and only worth alerting very
// close to the boundary, which is what the near tier expresses.
type Rules struct {
	Cascade []CategoryRule

	AlertInclude *regexp.Regexp // property-crime family, wide tier
	AlertNear    *regexp.Regexp // suspicious/prowler/trespass, near tier
	AlertExclude *regexp.Regexp // vetoes both inclusion sets

	CriticalViolent *regexp.Regexp // violent subset that escalates to critical
	HighSignal      *regexp.Regexp // stolen vehicle / missing person escalation
}

type Classifier struct {
	rules Rules
}

func New(rules Rules) *Classifier {
	return &Classifier{rules: rules}
}

func NewDefault() *Classifier {
	return New(DefaultRules())
}

// DefaultRules is the production rule set. The cascade order is part of the
// contract: burglary outranks violent so that "robbery" wording inside a
// burglary offense description cannot hijack the category, and the
// property-family rule sweeps up everything the burglary rule excluded.
func DefaultRules() Rules {
	return Rules{
		Cascade: []CategoryRule{
			{
				Name:     "burglary",
				Match:    regexp.MustCompile(`\b(459|460)\b|burglar`),
				Exclude:  regexp.MustCompile(`alarm|shoplift`),
				Category: CategoryBurglary,
			},
			{
				Name:     "violent",
				Match:    regexp.MustCompile(`homicide|murder|assault|battery|robbery|weapon|shooting|shots fired|stabbing|rape|kidnap|carjack`),
				Category: CategoryViolent,
			},
			{
				Name:     "property",
				Match:    regexp.MustCompile(`burglar|larceny|theft|fraud|stolen|shoplift|embezzle|forgery|identity|vandal|arson`),
				Category: CategoryProperty,
			},
			{
				Name:     "traffic",
				Match:    regexp.MustCompile(`traffic|collision|dui|hit and run|reckless driv|parking`),
				Category: CategoryTraffic,
			},
			{
				Name:     "drugs",
				Match:    regexp.MustCompile(`drug|narcotic|overdose|paraphernalia`),
				Category: CategoryDrugs,
			},
			{
				Name:     "suspicious",
				Match:    regexp.MustCompile(`suspicious person|prowler|trespass`),
				Category: CategorySuspicious,
			},
			{
				Name:     "fire",
				Match:    regexp.MustCompile(`fire|hazard|smoke|gas leak`),
				Category: CategoryFire,
			},
			{
				Name:     "medical",
				Match:    regexp.MustCompile(`medical|injur|ambulance|cpr`),
				Category: CategoryMedical,
			},
		},

		AlertInclude: regexp.MustCompile(`burglar|larceny|theft|fraud|stolen|shoplift|embezzle|forgery|identity|vandal|arson`),
		AlertNear:    regexp.MustCompile(`suspicious person|prowler|trespass`),
		// Burglary-alarm wording appears in either order depending on the
		// agency's CAD export. PC 484 is petty theft under another name.
		AlertExclude: regexp.MustCompile(`shoplift|petty theft|\b484\b|alarm.*burglar|burglar.*alarm`),

		CriticalViolent: regexp.MustCompile(`homicide|murder|assault|robbery|weapon|shooting|shots fired|stabbing`),
		HighSignal:      regexp.MustCompile(`stolen vehicle|missing person`),
	}
}

// Classify concatenates the text fields case-insensitively and applies the
// cascade. Text matching no rule is never an error; it lands in the "other"
// category with no alert eligibility.
func (c *Classifier) Classify(textFields []string) Result {
	var parts []string
	for _, f := range textFields {
		if f != "" {
			parts = append(parts, f)
		}
	}
	buf := strings.ToLower(strings.Join(parts, " "))

	category := CategoryOther
	for _, rule := range c.rules.Cascade {
		if !rule.Match.MatchString(buf) {
			continue
		}
		if rule.Exclude != nil && rule.Exclude.MatchString(buf) {
			continue
		}
		category = rule.Category
		break
	}

	res := Result{
		Category:  category,
		Severity:  c.severityFor(category, buf),
		AlertTier: TierNone,
	}

	if !c.rules.AlertExclude.MatchString(buf) {
		switch {
		case c.rules.AlertInclude.MatchString(buf):
			res.AlertEligible = true
			res.AlertTier = TierWide
		case c.rules.AlertNear.MatchString(buf):
			res.AlertEligible = true
			res.AlertTier = TierNear
		}
	}
	return res
}

func (c *Classifier) severityFor(category Category, buf string) Severity {
	switch category {
	case CategoryViolent:
		if c.rules.CriticalViolent.MatchString(buf) {
			return SeverityCritical
		}
		return SeverityHigh
	case CategoryBurglary, CategoryDrugs:
		return SeverityHigh
	case CategoryTraffic, CategorySuspicious, CategoryFire:
		return SeverityMedium
	}
	if c.rules.HighSignal.MatchString(buf) {
		return SeverityHigh
	}
	return SeverityLow
}
