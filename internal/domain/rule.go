package domain

import (
	"strconv"
	"strings"
	"time"
)

// ThresholdType selects how matching records are compared to the threshold.
type ThresholdType string

const (
	ThresholdCount      ThresholdType = "count"
	ThresholdPercentage ThresholdType = "percentage"
)

// PeriodType selects the time window a rule considers.
type PeriodType string

const (
	// PeriodUnspecified is the legacy form: a rolling window of PeriodDays.
	PeriodUnspecified PeriodType = ""
	PeriodDays        PeriodType = "days"
	PeriodSeason      PeriodType = "season"
	PeriodAllTime     PeriodType = "all_time"
)

// Operator is the role a rule plays when combined with its siblings.
type Operator string

const (
	OperatorAnd Operator = "and"
	OperatorOr  Operator = "or"
)

// DefaultPeriodDays applies to rolling windows without a configured length.
const DefaultPeriodDays = 30

// RuleConfig is a rule as stored, before validation.
type RuleConfig struct {
	ID             string
	ScopeTypes     []string
	Statuses       []string
	ThresholdType  string
	ThresholdValue float64
	PeriodType     string
	PeriodDays     int
	Operator       string
}

// CriticalRule is a validated rule ready for evaluation.
type CriticalRule struct {
	ID             string
	ScopeTypes     map[string]struct{}
	Statuses       map[AttendanceStatus]struct{}
	ThresholdType  ThresholdType
	ThresholdValue float64
	PeriodType     PeriodType
	PeriodDays     int
	Operator       Operator
}

// ParseRule validates a stored rule into a CriticalRule.
func ParseRule(cfg RuleConfig) (CriticalRule, error) {
	rule := CriticalRule{
		ID:             cfg.ID,
		ScopeTypes:     make(map[string]struct{}, len(cfg.ScopeTypes)),
		Statuses:       make(map[AttendanceStatus]struct{}, len(cfg.Statuses)),
		ThresholdValue: cfg.ThresholdValue,
		PeriodDays:     cfg.PeriodDays,
	}

	if cfg.ThresholdValue <= 0 {
		return CriticalRule{}, &RuleConfigError{RuleID: cfg.ID, Reason: "threshold must be greater than zero"}
	}

	for _, s := range cfg.Statuses {
		if status := NormalizeStatus(s); status != "" {
			rule.Statuses[status] = struct{}{}
		}
	}
	if len(rule.Statuses) == 0 {
		return CriticalRule{}, &RuleConfigError{RuleID: cfg.ID, Reason: "at least one status is required"}
	}

	for _, t := range cfg.ScopeTypes {
		if t = strings.TrimSpace(t); t != "" {
			rule.ScopeTypes[t] = struct{}{}
		}
	}

	switch ThresholdType(strings.ToLower(cfg.ThresholdType)) {
	case ThresholdCount:
		rule.ThresholdType = ThresholdCount
	case ThresholdPercentage:
		rule.ThresholdType = ThresholdPercentage
	default:
		return CriticalRule{}, &RuleConfigError{RuleID: cfg.ID, Reason: "unknown threshold type " + strconv.Quote(cfg.ThresholdType)}
	}

	switch PeriodType(strings.ToLower(cfg.PeriodType)) {
	case PeriodUnspecified, PeriodDays:
		rule.PeriodType = PeriodDays
		if rule.PeriodDays <= 0 {
			rule.PeriodDays = DefaultPeriodDays
		}
	case PeriodSeason:
		rule.PeriodType = PeriodSeason
	case PeriodAllTime:
		rule.PeriodType = PeriodAllTime
	default:
		return CriticalRule{}, &RuleConfigError{RuleID: cfg.ID, Reason: "unknown period type " + strconv.Quote(cfg.PeriodType)}
	}

	switch Operator(strings.ToLower(cfg.Operator)) {
	case OperatorAnd:
		rule.Operator = OperatorAnd
	case OperatorOr, "":
		rule.Operator = OperatorOr
	default:
		return CriticalRule{}, &RuleConfigError{RuleID: cfg.ID, Reason: "unknown operator " + strconv.Quote(cfg.Operator)}
	}

	return rule, nil
}

// ParseRules validates every config. Rules that fail validation are left out
// and their errors returned alongside the valid rules.
func ParseRules(configs []RuleConfig) ([]CriticalRule, []error) {
	rules := make([]CriticalRule, 0, len(configs))
	var errs []error
	for _, cfg := range configs {
		rule, err := ParseRule(cfg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rules = append(rules, rule)
	}
	return rules, errs
}

// periodLength returns the rolling window length of a days rule.
func (r CriticalRule) periodLength() time.Duration {
	return time.Duration(r.PeriodDays) * 24 * time.Hour
}
