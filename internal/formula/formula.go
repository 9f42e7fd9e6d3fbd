package formula

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/codr1/tidyquote/internal/fields"
	"github.com/codr1/tidyquote/internal/models"
)

// Expr is a compiled formula. It is immutable and safe for concurrent use.
type Expr struct {
	source string
	root   node
	refs   []string
}

// Compile tokenizes and parses src.
func Compile(src string) (*Expr, error) {
	tokens, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	root, err := parse(tokens)
	if err != nil {
		return nil, err
	}
	return &Expr{source: src, root: root, refs: references(tokens)}, nil
}

// CompileElements renders elements with Source and compiles the result.
func CompileElements(elements []models.FormulaElement) (*Expr, error) {
	src, err := Source(elements)
	if err != nil {
		return nil, err
	}
	return Compile(src)
}

func (e *Expr) Source() string { return e.source }

// Refs returns the normalized field names the expression reads, sorted.
func (e *Expr) Refs() []string { return e.refs }

// Eval evaluates the expression. The result must be a finite number.
func (e *Expr) Eval(ctx Context) (float64, error) {
	v, err := e.root.eval(ctx)
	if err != nil {
		return 0, err
	}
	if v.kind != kindNumber {
		return 0, ErrNonNumericResult
	}
	if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
		return 0, ErrNonFiniteResult
	}
	return v.num, nil
}

// Evaluate compiles and evaluates f against ctx. Every failure, including
// syntax errors in a formula that skipped validation, is an *EvaluationError.
func Evaluate(f models.Formula, ctx Context) (float64, error) {
	expr, err := CompileElements(f.Elements)
	if err != nil {
		return 0, &EvaluationError{Formula: f.Name, Err: err}
	}
	result, err := expr.Eval(ctx)
	if err != nil {
		return 0, &EvaluationError{Formula: f.Name, Err: err}
	}
	return result, nil
}

// Source renders a stored element list as expression text. Field references
// are written as fields.Identifier and carry their attribute as a suffix.
func Source(elements []models.FormulaElement) (string, error) {
	if len(elements) == 0 {
		return "", &SyntaxError{Pos: -1, Msg: ErrEmptyFormula.Error(), Err: ErrEmptyFormula}
	}
	parts := make([]string, 0, len(elements))
	for i, el := range elements {
		switch el.Kind {
		case models.ElementField:
			ref, err := fieldReference(el)
			if err != nil {
				return "", &SyntaxError{Pos: -1, Msg: fmt.Sprintf("element %d: %v", i, err), Err: err}
			}
			parts = append(parts, ref)
		case models.ElementOperator:
			op := strings.TrimSpace(el.Value)
			if !isOperator(op) {
				return "", syntaxErrorf(-1, "element %d: unknown operator %q", i, el.Value)
			}
			parts = append(parts, op)
		case models.ElementNumber:
			lit := strings.TrimSpace(el.Value)
			if lit != "true" && lit != "false" {
				if !numberRegex.MatchString(lit) {
					return "", syntaxErrorf(-1, "element %d: invalid number %q", i, el.Value)
				}
			}
			parts = append(parts, lit)
		default:
			return "", syntaxErrorf(-1, "element %d: unknown kind %q", i, el.Kind)
		}
	}
	return strings.Join(parts, " "), nil
}

// Elements converts expression text to a stored element list. String
// literals have no element form and are rejected.
func Elements(src string) ([]models.FormulaElement, error) {
	tokens, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, &SyntaxError{Pos: -1, Msg: ErrEmptyFormula.Error(), Err: ErrEmptyFormula}
	}
	elements := make([]models.FormulaElement, 0, len(tokens))
	for _, tok := range tokens {
		switch tok.Kind {
		case TokenNumber:
			elements = append(elements, models.FormulaElement{Kind: models.ElementNumber, Value: tok.Text})
		case TokenOperator:
			elements = append(elements, models.FormulaElement{Kind: models.ElementOperator, Value: tok.Text})
		case TokenIdent:
			if tok.Text == "true" || tok.Text == "false" {
				elements = append(elements, models.FormulaElement{Kind: models.ElementNumber, Value: tok.Text})
				continue
			}
			name, attr := splitReference(tok.Text)
			elements = append(elements, models.FormulaElement{
				Kind:      models.ElementField,
				Reference: name,
				Attribute: attr,
			})
		default:
			return nil, syntaxErrorf(tok.Pos, "%s literals cannot be stored as elements", tok.Kind)
		}
	}
	return elements, nil
}

func fieldReference(el models.FormulaElement) (string, error) {
	ref := strings.TrimSpace(el.Reference)
	base, suffix, _ := strings.Cut(ref, ".")
	attr := strings.TrimSpace(el.Attribute)
	if attr == "" {
		attr = suffix
	}
	name := fields.Identifier(base)
	if name == "" {
		return "", fmt.Errorf("field reference %q is empty", el.Reference)
	}
	if attr == "" {
		return name, nil
	}
	if !validAttribute(attr) {
		return "", fmt.Errorf("%w %q", ErrUnknownAttribute, attr)
	}
	return name + "." + normalizeAttribute(attr), nil
}

func isOperator(s string) bool {
	for _, op := range threeCharOperators {
		if s == op {
			return true
		}
	}
	for _, op := range twoCharOperators {
		if s == op {
			return true
		}
	}
	return len(s) == 1 && strings.Contains(singleCharOperator, s)
}

// Validate performs the save-time checks on a stored element list: token
// grammar, balanced parentheses, matching '?' and ':' counts, references to
// known fields only, and a full parse. known holds field names; a nil slice
// skips the unknown-field check.
func Validate(elements []models.FormulaElement, known []string) error {
	src, err := Source(elements)
	if err != nil {
		return err
	}
	return ValidateSource(src, known)
}

// ValidateSource applies the checks of Validate to expression text.
func ValidateSource(src string, known []string) error {
	if strings.TrimSpace(src) == "" {
		return &SyntaxError{Pos: -1, Msg: ErrEmptyFormula.Error(), Err: ErrEmptyFormula}
	}
	tokens, err := Tokenize(src)
	if err != nil {
		return err
	}
	if err := checkBalance(tokens); err != nil {
		return err
	}
	if err := checkReferences(tokens, known); err != nil {
		return err
	}
	_, err = parse(tokens)
	return err
}

func checkBalance(tokens []Token) error {
	depth, questions, colons := 0, 0, 0
	for _, tok := range tokens {
		if tok.Kind != TokenOperator {
			continue
		}
		switch tok.Text {
		case "(":
			depth++
		case ")":
			depth--
			if depth < 0 {
				return &SyntaxError{Pos: tok.Pos, Msg: "unexpected ')'", Err: ErrUnbalancedParens}
			}
		case "?":
			questions++
		case ":":
			colons++
		}
	}
	if depth != 0 {
		return &SyntaxError{Pos: -1, Msg: fmt.Sprintf("%d unclosed '('", depth), Err: ErrUnbalancedParens}
	}
	if questions != colons {
		return &SyntaxError{
			Pos: -1,
			Msg: fmt.Sprintf("%d '?' but %d ':'", questions, colons),
			Err: ErrUnbalancedTernary,
		}
	}
	return nil
}

func checkReferences(tokens []Token, known []string) error {
	var knownSet map[string]struct{}
	if known != nil {
		knownSet = make(map[string]struct{}, len(known))
		for _, name := range known {
			knownSet[fields.Identifier(name)] = struct{}{}
		}
	}
	for _, tok := range tokens {
		if tok.Kind != TokenIdent || tok.Text == "true" || tok.Text == "false" {
			continue
		}
		name, attr := splitReference(tok.Text)
		if !validAttribute(attr) {
			return &SyntaxError{Pos: tok.Pos, Msg: fmt.Sprintf("unknown attribute %q", attr), Err: ErrUnknownAttribute}
		}
		if knownSet == nil {
			continue
		}
		if _, ok := knownSet[fields.Identifier(name)]; !ok {
			return &SyntaxError{Pos: tok.Pos, Msg: fmt.Sprintf("unknown field %q", name), Err: ErrUnknownField}
		}
	}
	return nil
}

func references(tokens []Token) []string {
	seen := make(map[string]struct{})
	for _, tok := range tokens {
		if tok.Kind != TokenIdent || tok.Text == "true" || tok.Text == "false" {
			continue
		}
		name, _ := splitReference(tok.Text)
		seen[fields.Identifier(name)] = struct{}{}
	}
	refs := make([]string, 0, len(seen))
	for name := range seen {
		refs = append(refs, name)
	}
	sort.Strings(refs)
	return refs
}

// IsSyntaxError reports whether err is or wraps a *SyntaxError.
func IsSyntaxError(err error) bool {
	var syntaxErr *SyntaxError
	return errors.As(err, &syntaxErr)
}
