// Package rewrite applies user-defined substitutions to transcripts before
// they reach the prompt buffer.
//
// Rules live in a YAML file:
//
//	iteration_limit: 30
//	rules:
//	  - match: pull request
//	    replace: PR
//	  - pattern: '\bdeep\s*gram\b'
//	    replace: Deepgram
//	    global: true
//
// A "match" rule replaces every case-insensitive occurrence of a literal. A
// "pattern" rule is a regular expression, case-insensitive unless
// case_sensitive is set, replacing only the first match unless global is set.
package rewrite

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultIterationLimit = 30

type File struct {
	IterationLimit int        `yaml:"iteration_limit"`
	Rules          []RuleSpec `yaml:"rules"`
}

type RuleSpec struct {
	Match         string `yaml:"match"`
	Pattern       string `yaml:"pattern"`
	Replace       string `yaml:"replace"`
	Global        bool   `yaml:"global"`
	CaseSensitive bool   `yaml:"case_sensitive"`
	Multiline     bool   `yaml:"multiline"`
	DotAll        bool   `yaml:"dotall"`
}

type rule struct {
	re     *regexp.Regexp
	with   string
	global bool
}

// Rewriter applies compiled rules until the text stops changing.
type Rewriter struct {
	rules     []rule
	loopLimit int
}

// Load reads a rules file. An empty path or a missing file yields a rewriter
// that returns text unchanged.
func Load(path string) (*Rewriter, error) {
	if strings.TrimSpace(path) == "" {
		return &Rewriter{loopLimit: defaultIterationLimit}, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Rewriter{loopLimit: defaultIterationLimit}, nil
		}
		return nil, fmt.Errorf("failed to read rewrite rules %q: %w", path, err)
	}

	rewriter, err := Parse(contents)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rewrite rules %q: %w", path, err)
	}
	return rewriter, nil
}

// Parse compiles rules from YAML.
func Parse(contents []byte) (*Rewriter, error) {
	var file File
	if err := yaml.Unmarshal(contents, &file); err != nil {
		return nil, err
	}
	return Compile(file)
}

// Compile builds a rewriter from already decoded rules.
func Compile(file File) (*Rewriter, error) {
	limit := file.IterationLimit
	if limit <= 0 {
		limit = defaultIterationLimit
	}

	rules := make([]rule, 0, len(file.Rules))
	for index, spec := range file.Rules {
		compiled, err := compileRule(spec)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", index+1, err)
		}
		rules = append(rules, compiled)
	}
	return &Rewriter{rules: rules, loopLimit: limit}, nil
}

func compileRule(spec RuleSpec) (rule, error) {
	hasMatch := strings.TrimSpace(spec.Match) != ""
	hasPattern := spec.Pattern != ""
	switch {
	case hasMatch && hasPattern:
		return rule{}, errors.New("match and pattern are mutually exclusive")
	case hasMatch:
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(strings.TrimSpace(spec.Match)))
		if err != nil {
			return rule{}, fmt.Errorf("invalid literal: %w", err)
		}
		return rule{re: re, with: spec.Replace, global: true}, nil
	case hasPattern:
		flags := ""
		if !spec.CaseSensitive {
			flags += "i"
		}
		if spec.Multiline {
			flags += "m"
		}
		if spec.DotAll {
			flags += "s"
		}
		pattern := spec.Pattern
		if flags != "" {
			pattern = "(?" + flags + ")" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return rule{}, fmt.Errorf("invalid pattern: %w", err)
		}
		return rule{re: re, with: spec.Replace, global: spec.Global}, nil
	default:
		return rule{}, errors.New("rule needs a match or a pattern")
	}
}

// Len returns the number of compiled rules.
func (r *Rewriter) Len() int {
	return len(r.rules)
}

// Apply transforms text deterministically. Each rule fires at most once, so
// a replacement containing its own match is not expanded again. Passes repeat
// while rules that have not fired yet can still match the output of later ones.
func (r *Rewriter) Apply(text string) (string, error) {
	if len(r.rules) == 0 {
		return text, nil
	}

	result := text
	fired := make([]bool, len(r.rules))
	for i := 0; i < r.loopLimit; i++ {
		changed := false
		for index, rl := range r.rules {
			if fired[index] {
				continue
			}
			next, ruleChanged := rl.apply(result)
			if ruleChanged {
				result = next
				fired[index] = true
				changed = true
			}
		}
		if !changed {
			return result, nil
		}
	}

	return result, nil
}

func (r rule) apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.with)
		return output, output != input
	}

	loc := r.re.FindStringIndex(input)
	if loc == nil {
		return input, false
	}
	segment := input[loc[0]:loc[1]]
	replaced := r.re.ReplaceAllString(segment, r.with)
	output := input[:loc[0]] + replaced + input[loc[1]:]
	return output, output != input
}
