package domain

import "time"

// Window is the period a rule considers: Start exclusive, End inclusive.
// A nil Start means no lower bound.
type Window struct {
	Start *time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if t.After(w.End) {
		return false
	}
	return w.Start == nil || t.After(*w.Start)
}

// ResolvePeriod computes the window of one rule for one subject.
// A subject's LastSolve later than the rule's own start replaces it.
func ResolvePeriod(rule CriticalRule, tenant Tenant, subject Subject, now time.Time) Window {
	w := Window{Start: ruleStart(rule, tenant, now), End: now}

	if subject.LastSolve != nil && (w.Start == nil || subject.LastSolve.After(*w.Start)) {
		solved := *subject.LastSolve
		w.Start = &solved
	}

	return w
}

func ruleStart(rule CriticalRule, tenant Tenant, now time.Time) *time.Time {
	switch rule.PeriodType {
	case PeriodSeason:
		if tenant.SeasonStart == nil {
			return nil
		}
		start := *tenant.SeasonStart
		return &start
	case PeriodAllTime:
		return nil
	default:
		start := now.Add(-rule.periodLength())
		return &start
	}
}

// MatchCount is the outcome of filtering a subject's records for one rule.
type MatchCount struct {
	Matching int
	Total    int
}

// MatchRecords counts the records inside the window and the rule's type scope,
// and how many of those carry one of the rule's statuses. Statuses compare
// case-insensitively.
func MatchRecords(rule CriticalRule, w Window, records []AttendanceRecord) MatchCount {
	var c MatchCount
	for _, r := range records {
		if !w.Contains(r.Date) {
			continue
		}
		if len(rule.ScopeTypes) > 0 {
			if _, ok := rule.ScopeTypes[r.TypeID]; !ok {
				continue
			}
		}
		c.Total++
		if _, ok := rule.Statuses[NormalizeStatus(string(r.Status))]; ok {
			c.Matching++
		}
	}
	return c
}

// Reached reports whether the counts meet the rule's threshold.
// A percentage rule without any records is never reached.
func (r CriticalRule) Reached(c MatchCount) bool {
	switch r.ThresholdType {
	case ThresholdPercentage:
		if c.Total == 0 {
			return false
		}
		return float64(c.Matching)/float64(c.Total)*100 >= r.ThresholdValue
	default:
		return float64(c.Matching) >= r.ThresholdValue
	}
}

// RuleOutcome is one rule's result for one subject.
type RuleOutcome struct {
	RuleID   string
	Operator Operator
	Reached  bool
}

// Combine folds the outcomes into a verdict: any reached OR rule, or every
// AND rule reached when at least one exists.
//
// Note that OR rules short-circuit the AND group: with both groups configured,
// a single reached OR rule is enough, and so is a fully reached AND group.
func Combine(outcomes []RuleOutcome) bool {
	var anyOr bool
	andCount, andReached := 0, 0

	for _, o := range outcomes {
		switch o.Operator {
		case OperatorAnd:
			andCount++
			if o.Reached {
				andReached++
			}
		default:
			anyOr = anyOr || o.Reached
		}
	}

	allAnd := andCount > 0 && andReached == andCount
	return anyOr || allAnd
}

// EvaluateSubject runs every rule against the subject's records and returns
// the combined verdict together with the per-rule outcomes.
func EvaluateSubject(tenant Tenant, rules []CriticalRule, subject Subject, records []AttendanceRecord, now time.Time) (bool, []RuleOutcome) {
	outcomes := make([]RuleOutcome, 0, len(rules))
	for _, rule := range rules {
		w := ResolvePeriod(rule, tenant, subject, now)
		outcomes = append(outcomes, RuleOutcome{
			RuleID:   rule.ID,
			Operator: rule.Operator,
			Reached:  rule.Reached(MatchRecords(rule, w, records)),
		})
	}
	return Combine(outcomes), outcomes
}

// FetchWindowStart returns the earliest start any rule can need, so a tenant's
// attendance can be loaded with one query. nil means no lower bound.
func FetchWindowStart(rules []CriticalRule, tenant Tenant, now time.Time) *time.Time {
	var earliest *time.Time
	for i, rule := range rules {
		start := ruleStart(rule, tenant, now)
		if start == nil {
			return nil
		}
		if i == 0 || start.Before(*earliest) {
			earliest = start
		}
	}
	return earliest
}
