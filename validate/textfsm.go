// Package validate scores device output against structured-text
// extraction templates and selects the best match for a job's filter.
//
// The template dialect is the TextFSM subset the template corpus
// actually uses: Value declarations with Filldown/Required/Key/List
// modifiers, named states, rules with Record/Clear/Clearall/Continue/
// Error actions and state transitions. Values are substituted into rule
// patterns as named capture groups.
package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// Value is a template variable declaration.
type Value struct {
	Name  string
	Regex string

	Filldown bool
	Required bool
	Key      bool
	List     bool
}

// Rule is one state rule: a line pattern plus its actions.
type Rule struct {
	pattern *regexp.Regexp

	// lineOp: "Next" (default) or "Continue".
	lineOp string
	// recordOp: "", "Record", "NoRecord", "Clear", "Clearall", "Error".
	recordOp string
	// newState transitions after the rule fires; empty keeps the state.
	newState string
}

// Template is a compiled extraction template.
type Template struct {
	values []Value
	states map[string][]Rule
	header []string
}

// Record is one parsed row keyed by value name.
type Record map[string]string

var valueLine = regexp.MustCompile(`^Value(\s+[A-Za-z,]+)?\s+(\w+)\s+\((.*)\)\s*$`)

// ParseTemplate compiles template text.
func ParseTemplate(text string) (*Template, error) {
	t := &Template{states: make(map[string][]Rule)}

	lines := strings.Split(text, "\n")
	i := 0

	// Value section
	for ; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			if len(t.values) > 0 && trimmed == "" {
				i++
				break
			}
			continue
		}
		if !strings.HasPrefix(trimmed, "Value ") {
			break
		}

		m := valueLine.FindStringSubmatch(trimmed)
		if m == nil {
			return nil, fmt.Errorf("bad value declaration: %q", trimmed)
		}
		v := Value{Name: m[2], Regex: m[3]}
		for _, mod := range strings.FieldsFunc(strings.TrimSpace(m[1]), func(r rune) bool {
			return r == ',' || r == ' '
		}) {
			switch mod {
			case "Filldown":
				v.Filldown = true
			case "Required":
				v.Required = true
			case "Key":
				v.Key = true
			case "List":
				v.List = true
			case "":
			default:
				return nil, fmt.Errorf("unknown value modifier %q in %q", mod, trimmed)
			}
		}
		t.values = append(t.values, v)
		t.header = append(t.header, v.Name)
	}

	if len(t.values) == 0 {
		return nil, fmt.Errorf("template declares no values")
	}

	// State sections
	state := ""
	for ; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			state = trimmed
			if _, dup := t.states[state]; dup {
				return nil, fmt.Errorf("duplicate state %q", state)
			}
			t.states[state] = nil
			continue
		}

		if state == "" {
			return nil, fmt.Errorf("rule before any state: %q", trimmed)
		}
		rule, err := t.parseRule(trimmed)
		if err != nil {
			return nil, err
		}
		t.states[state] = append(t.states[state], rule)
	}

	if _, ok := t.states["Start"]; !ok {
		return nil, fmt.Errorf("template has no Start state")
	}
	return t, nil
}

var valueRef = regexp.MustCompile(`\$\{?(\w+)\}?`)

func (t *Template) parseRule(text string) (Rule, error) {
	if !strings.HasPrefix(text, "^") {
		return Rule{}, fmt.Errorf("rule must start with ^: %q", text)
	}

	patternText := text
	action := ""
	if idx := strings.Index(text, " -> "); idx >= 0 {
		patternText = strings.TrimSpace(text[:idx])
		action = strings.TrimSpace(text[idx+4:])
	}

	expanded := valueRef.ReplaceAllStringFunc(patternText, func(ref string) string {
		name := valueRef.FindStringSubmatch(ref)[1]
		for _, v := range t.values {
			if v.Name == name {
				return "(?P<" + name + ">" + v.Regex + ")"
			}
		}
		return ref
	})

	compiled, err := regexp.Compile(expanded)
	if err != nil {
		return Rule{}, fmt.Errorf("bad rule pattern %q: %w", patternText, err)
	}

	rule := Rule{pattern: compiled, lineOp: "Next"}
	if action == "" {
		return rule, nil
	}

	fields := strings.Fields(action)
	ops := fields[0]
	if len(fields) > 2 {
		return Rule{}, fmt.Errorf("bad rule action %q", action)
	}

	// ops is LineOp, RecordOp, or LineOp.RecordOp; a bare state name is
	// also legal ("-> EOF", "-> Interfaces").
	assignOp := func(op string) bool {
		switch op {
		case "Next", "Continue":
			rule.lineOp = op
		case "Record", "NoRecord", "Clear", "Clearall", "Error":
			rule.recordOp = op
		default:
			return false
		}
		return true
	}

	if dot := strings.Index(ops, "."); dot >= 0 {
		if !assignOp(ops[:dot]) || !assignOp(ops[dot+1:]) {
			return Rule{}, fmt.Errorf("bad rule action %q", action)
		}
	} else if !assignOp(ops) {
		// Bare state name
		if len(fields) > 1 {
			return Rule{}, fmt.Errorf("bad rule action %q", action)
		}
		rule.newState = ops
		return rule, nil
	}

	if len(fields) == 2 {
		if rule.lineOp == "Continue" {
			return Rule{}, fmt.Errorf("continue cannot change state: %q", action)
		}
		rule.newState = fields[1]
	}
	return rule, nil
}

// Header returns the value names in declaration order.
func (t *Template) Header() []string {
	out := make([]string, len(t.header))
	copy(out, t.header)
	return out
}

// Execute runs the template over input and returns the parsed records.
func (t *Template) Execute(input string) ([]Record, error) {
	run := &templateRun{t: t, row: make(map[string]string)}
	state := "Start"

	for _, rawLine := range strings.Split(input, "\n") {
		line := strings.TrimRight(rawLine, "\r")
		if state == "EOF" || state == "End" {
			break
		}

		rules := t.states[state]
		for _, rule := range rules {
			m := rule.pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			run.assign(rule.pattern, m)

			switch rule.recordOp {
			case "Record":
				run.record()
			case "Clear":
				run.clear(false)
			case "Clearall":
				run.clear(true)
			case "Error":
				return nil, fmt.Errorf("template error state on line %q", line)
			}

			if rule.newState != "" {
				state = rule.newState
			}
			if rule.lineOp != "Continue" {
				break
			}
		}
	}

	// Implicit EOF record, unless an explicit EOF state suppresses it.
	if _, explicitEOF := t.states["EOF"]; !explicitEOF && state != "End" {
		run.record()
	}

	return run.records, nil
}

type templateRun struct {
	t       *Template
	row     map[string]string
	touched bool
	records []Record
}

func (r *templateRun) assign(pattern *regexp.Regexp, match []string) {
	for i, name := range pattern.SubexpNames() {
		if i == 0 || name == "" || match[i] == "" {
			continue
		}
		if r.valueFor(name).List {
			if existing := r.row[name]; existing != "" {
				r.row[name] = existing + "," + match[i]
			} else {
				r.row[name] = match[i]
			}
		} else {
			r.row[name] = match[i]
		}
		r.touched = true
	}
}

func (r *templateRun) valueFor(name string) Value {
	for _, v := range r.t.values {
		if v.Name == name {
			return v
		}
	}
	return Value{}
}

// record appends the current row when it holds data and every Required
// value is set, then clears non-Filldown values.
func (r *templateRun) record() {
	if !r.touched {
		return
	}
	for _, v := range r.t.values {
		if v.Required && r.row[v.Name] == "" {
			r.clear(false)
			return
		}
	}

	rec := make(Record, len(r.t.values))
	for _, v := range r.t.values {
		rec[v.Name] = r.row[v.Name]
	}
	r.records = append(r.records, rec)
	r.clear(false)
}

// clear resets row values; Filldown values persist unless all is set.
func (r *templateRun) clear(all bool) {
	for _, v := range r.t.values {
		if v.Filldown && !all {
			continue
		}
		delete(r.row, v.Name)
	}
	r.touched = false
}
