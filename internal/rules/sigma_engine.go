package rules

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	sigma "github.com/bradleyjkemp/sigma-go"
	sigmaevaluator "github.com/bradleyjkemp/sigma-go/evaluator"

	"correlationbrain/internal/logger"
	"correlationbrain/pkg/models"
)

var techniqueTagRegex = regexp.MustCompile(`^attack\.t\d{4}(?:\.\d{3})?$`)

// SigmaLoadStats tracks the number of loaded and skipped rules.
type SigmaLoadStats struct {
	TotalFiles        int
	Loaded            int
	SkippedComplex    int
	SkippedDatasource int
	SkippedInvalid    int
}

type compiledSigmaRule struct {
	product string
	eval    *sigmaevaluator.RuleEvaluator
	label   string
}

// SigmaTagger evaluates Sigma rules against individual engine alerts.
// A rule's logsource.product selects the engine it applies to; rules without
// a product apply to every engine.
type SigmaTagger struct {
	rules []compiledSigmaRule
	ctx   context.Context
}

// NewSigmaTagger loads Sigma rules from a file or directory and compiles evaluators.
// Rules for other data sources, multi-event rules and unparsable files are
// skipped and counted in stats.
func NewSigmaTagger(path string) (*SigmaTagger, SigmaLoadStats, error) {
	var stats SigmaLoadStats

	files, err := collectRuleFiles(path)
	if err != nil {
		return nil, stats, err
	}
	stats.TotalFiles = len(files)

	tagger := &SigmaTagger{ctx: context.Background()}
	for _, ruleFile := range files {
		rule, err := parseSigmaRuleFile(ruleFile)
		if err != nil {
			logger.Debugf("Skipping Sigma rule: %v", err)
			stats.SkippedInvalid++
			continue
		}
		if !isAlertCompatible(rule) {
			stats.SkippedDatasource++
			continue
		}
		if reason := unsupportedReason(rule); reason != "" {
			logger.Debugf("Skipping Sigma rule %s: %s", ruleFile, reason)
			stats.SkippedComplex++
			continue
		}
		tagger.rules = append(tagger.rules, compiledSigmaRule{
			product: normalizeProduct(rule.Logsource.Product),
			eval:    sigmaevaluator.ForRule(rule),
			label:   tagFromRule(rule),
		})
		stats.Loaded++
	}
	return tagger, stats, nil
}

// collectRuleFiles returns path itself when it is a YAML file, or every YAML
// file below it when it is a directory.
func collectRuleFiles(path string) ([]string, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve rule path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat rule path: %w", err)
	}
	if !info.IsDir() {
		if !isYAMLFile(root) {
			return nil, fmt.Errorf("rule file must end with .yml or .yaml: %s", root)
		}
		return []string{root}, nil
	}

	var files []string
	walk := func(p string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case !d.IsDir() && isYAMLFile(p):
			files = append(files, p)
		}
		return nil
	}
	if err := filepath.WalkDir(root, walk); err != nil {
		return nil, fmt.Errorf("walk rule directory: %w", err)
	}
	return files, nil
}

// Len returns the number of compiled rules.
func (e *SigmaTagger) Len() int {
	if e == nil {
		return 0
	}
	return len(e.rules)
}

// Apply returns the labels of the rules matching alert, in load order.
func (e *SigmaTagger) Apply(alert *models.Alert) []string {
	if e.Len() == 0 || alert == nil {
		return nil
	}

	product := normalizeProduct(alert.Engine)
	event := sigmaEventFrom(alert)
	var matched []string
	for _, rule := range e.rules {
		if rule.product != "" && rule.product != product {
			continue
		}
		res, err := rule.eval.Matches(e.ctx, event)
		if err != nil {
			logger.Debugf("Sigma rule %q failed on %s alert: %v", rule.label, alert.EngineName(), err)
			continue
		}
		if res.Match {
			matched = append(matched, rule.label)
		}
	}
	return matched
}

func parseSigmaRuleFile(path string) (sigma.Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return sigma.Rule{}, fmt.Errorf("read sigma rule %s: %w", path, err)
	}
	rule, err := sigma.ParseRule(raw)
	if err != nil {
		return sigma.Rule{}, fmt.Errorf("parse sigma rule %s: %w", path, err)
	}
	return rule, nil
}

func isYAMLFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
}

var knownProducts = map[string]struct{}{
	normalizeProduct(models.EngineIDS):         {},
	normalizeProduct(models.EngineTraffic):     {},
	normalizeProduct(models.EngineUEBA):        {},
	normalizeProduct(models.EngineArtifact):    {},
	normalizeProduct(models.EngineThreatIntel): {},
}

// normalizeProduct maps "Traffic Engine" and "traffic_engine" onto the same key.
func normalizeProduct(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func isAlertCompatible(rule sigma.Rule) bool {
	product := normalizeProduct(rule.Logsource.Product)
	if product == "" {
		return true
	}
	_, ok := knownProducts[product]
	return ok
}

// unsupportedReason explains why rule cannot be evaluated against a single
// alert, or returns "".
func unsupportedReason(rule sigma.Rule) string {
	if rule.Detection.Timeframe > 0 {
		return "timeframe"
	}
	for _, cond := range rule.Detection.Conditions {
		if cond.Aggregation != nil {
			return "aggregation"
		}
		if !plainExpression(cond.Search) {
			return "condition expression"
		}
	}
	for name, search := range rule.Detection.Searches {
		if len(search.Keywords) > 0 {
			return "keyword search " + name
		}
		if len(search.EventMatchers) == 0 {
			return "empty search " + name
		}
	}
	return ""
}

// plainExpression reports whether expr only combines named searches with
// and/or/not.
func plainExpression(expr sigma.SearchExpr) bool {
	var children []sigma.SearchExpr
	switch e := expr.(type) {
	case sigma.SearchIdentifier:
		return true
	case sigma.Not:
		return plainExpression(e.Expr)
	case sigma.And:
		children = e
	case sigma.Or:
		children = e
	default:
		return false
	}
	for _, child := range children {
		if !plainExpression(child) {
			return false
		}
	}
	return true
}

var promotedObjects = []string{"flow_data", "user_profile"}

func sigmaEventFrom(alert *models.Alert) map[string]interface{} {
	buf := make(map[string]interface{}, alert.Details.Len()+8)
	for _, k := range alert.Details.Keys() {
		v, _ := alert.Details.Field(k)
		buf[k] = v.Any()
	}
	for _, name := range promotedObjects {
		nested, ok := alert.Details.Field(name)
		if !ok {
			continue
		}
		for _, k := range nested.Keys() {
			if _, exists := buf[k]; exists {
				continue
			}
			v, _ := nested.Field(k)
			buf[k] = v.Any()
		}
	}
	buf["engine"] = alert.Engine
	buf["severity"] = string(alert.Severity)
	buf["alertType"] = alert.AlertType
	return buf
}

// tagFromRule labels a rule by title, suffixed with its ATT&CK technique
// ("Beaconing (T1071/001)") when tagged with one.
func tagFromRule(rule sigma.Rule) string {
	name := strings.TrimSpace(rule.Title)
	if name == "" {
		name = strings.TrimSpace(rule.ID)
	}
	for _, raw := range rule.Tags {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if techniqueTagRegex.MatchString(tag) {
			technique := strings.TrimPrefix(tag, "attack.")
			return fmt.Sprintf("%s (%s)", name, strings.ToUpper(strings.ReplaceAll(technique, ".", "/")))
		}
	}
	return name
}
