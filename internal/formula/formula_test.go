package formula

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/codr1/tidyquote/internal/models"
)

func testContext() Context {
	ctx := Context{}
	ctx.Set("bedrooms", Attributes{Value: 0, Time: 90, Min: 1, Max: 6})
	ctx.Set("bathrooms", Attributes{Value: 0, Time: 30})
	ctx.Set("serviceType", Attributes{Value: 15, Time: 1})
	ctx.SetScalar("basetime", 2)
	return ctx
}

func field(ref string) models.FormulaElement {
	return models.FormulaElement{Kind: models.ElementField, Reference: ref}
}

func op(v string) models.FormulaElement {
	return models.FormulaElement{Kind: models.ElementOperator, Value: v}
}

func num(v string) models.FormulaElement {
	return models.FormulaElement{Kind: models.ElementNumber, Value: v}
}

func TestTokenize(t *testing.T) {
	tokens, err := Tokenize(`a.time>=1 && b!=='x ? y' ? (2.5) : -c`)
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	want := []struct {
		kind TokenKind
		text string
	}{
		{TokenIdent, "a.time"},
		{TokenOperator, ">="},
		{TokenNumber, "1"},
		{TokenOperator, "&&"},
		{TokenIdent, "b"},
		{TokenOperator, "!=="},
		{TokenString, "x ? y"},
		{TokenOperator, "?"},
		{TokenOperator, "("},
		{TokenNumber, "2.5"},
		{TokenOperator, ")"},
		{TokenOperator, ":"},
		{TokenOperator, "-"},
		{TokenIdent, "c"},
	}
	if len(tokens) != len(want) {
		t.Fatalf("Tokenize() returned %d tokens, want %d: %+v", len(tokens), len(want), tokens)
	}
	for i, w := range want {
		if tokens[i].Kind != w.kind || tokens[i].Text != w.text {
			t.Errorf("token %d = %s %q, want %s %q", i, tokens[i].Kind, tokens[i].Text, w.kind, w.text)
		}
	}
}

func TestTokenizeErrors(t *testing.T) {
	tests := []string{
		`"unterminated`,
		`a = 1`,
		`a == 1`,
		`a.b.c`,
		`1abc`,
		`a; b`,
		`x[0]`,
		`$x`,
	}
	for _, src := range tests {
		if _, err := Tokenize(src); !IsSyntaxError(err) {
			t.Errorf("Tokenize(%q) error = %v, want SyntaxError", src, err)
		}
	}
}

func TestEvaluateExpressions(t *testing.T) {
	tests := []struct {
		src  string
		want float64
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 - 4 - 3", 3},
		{"12 / 4 / 3", 1},
		{"-bedrooms.time + 100", 10},
		{"bedrooms.time + bathrooms.time", 120},
		{"(bedrooms.time + bathrooms.time) * serviceType.time", 120},
		{"servicetype * basetime", 30},
		{"bedrooms.min + bedrooms.max", 7},
		{"bedrooms.minValue + bedrooms.maxValue", 7},
		{"bedrooms.time > 60 ? 1 : 2", 1},
		{"bedrooms.time < 60 ? 1 : bathrooms.time === 30 ? 3 : 4", 3},
		{"bedrooms.time >= 90 && bathrooms.time <= 30 ? 5 : 0", 5},
		{"!(bedrooms.time !== 90) ? 1 : 0", 1},
		{"0 || 4", 4},
		{"3 && 4", 4},
		{"0 && missing", 0},
		{"1 || missing", 1},
		{"true + 1", 2},
		{"'a' === 'a' ? 1 : 0", 1},
		{".5 * 4", 2},
	}
	ctx := testContext()
	for _, tt := range tests {
		expr, err := Compile(tt.src)
		if err != nil {
			t.Fatalf("Compile(%q) error = %v", tt.src, err)
		}
		got, err := expr.Eval(ctx)
		if err != nil {
			t.Fatalf("Eval(%q) error = %v", tt.src, err)
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Eval(%q) = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestEvaluateFailures(t *testing.T) {
	tests := []struct {
		src  string
		want error
	}{
		{"1 / 0", ErrNonFiniteResult},
		{"0 / 0", ErrNonFiniteResult},
		{"1 > 0", ErrNonNumericResult},
		{"'text'", ErrNonNumericResult},
		{"unknownfield + 1", ErrUnknownField},
		{"bedrooms.price", ErrUnknownAttribute},
	}
	ctx := testContext()
	for _, tt := range tests {
		expr, err := Compile(tt.src)
		if err != nil {
			t.Fatalf("Compile(%q) error = %v", tt.src, err)
		}
		if _, err := expr.Eval(ctx); !errors.Is(err, tt.want) {
			t.Errorf("Eval(%q) error = %v, want %v", tt.src, err, tt.want)
		}
	}

	expr, err := Compile("'a' * 2")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if _, err := expr.Eval(ctx); err == nil {
		t.Fatalf("Eval(string arithmetic) error = nil, want error")
	}
}

func TestEvaluateWrapsErrors(t *testing.T) {
	f := models.Formula{
		Name:     "Broken",
		Elements: []models.FormulaElement{field("bedrooms.time"), op("/"), num("0")},
	}
	_, err := Evaluate(f, testContext())
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("Evaluate() error = %v, want *EvaluationError", err)
	}
	if evalErr.Formula != "Broken" || !errors.Is(err, ErrNonFiniteResult) {
		t.Fatalf("Evaluate() error = %v, want Broken/non-finite", err)
	}

	f.Elements = []models.FormulaElement{op("("), num("1")}
	if _, err := Evaluate(f, testContext()); !errors.As(err, &evalErr) || !IsSyntaxError(err) {
		t.Fatalf("Evaluate(unparseable) error = %v, want EvaluationError wrapping SyntaxError", err)
	}
}

func TestSource(t *testing.T) {
	src, err := Source([]models.FormulaElement{
		op("("),
		field("Bedrooms.time"),
		op("+"),
		{Kind: models.ElementField, Reference: "Bathrooms", Attribute: "time"},
		op(")"),
		op("*"),
		field("Service Type"),
		op("*"),
		num("1.5"),
	})
	if err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	want := "( bedrooms.time + bathrooms.time ) * servicetype * 1.5"
	if src != want {
		t.Fatalf("Source() = %q, want %q", src, want)
	}

	bad := [][]models.FormulaElement{
		nil,
		{op("=")},
		{num("1e9")},
		{field("   ")},
		{field("bedrooms.price")},
		{{Kind: "call", Value: "x"}},
	}
	for _, elements := range bad {
		if _, err := Source(elements); !IsSyntaxError(err) {
			t.Errorf("Source(%+v) error = %v, want SyntaxError", elements, err)
		}
	}
}

func TestValidate(t *testing.T) {
	known := []string{"bedrooms", "bathrooms", "serviceType", "basetime"}

	valid := []string{
		"bedrooms.time + bathrooms.time",
		"(bedrooms.time + bathrooms.time) * servicetype.time",
		"basetime > 3 ? basetime * 0.9 : basetime",
		"bedrooms.time > 60 ? (bathrooms.time > 0 ? 1 : 2) : 3",
		"!(bedrooms === 0) && bathrooms.max >= 1 ? 1 : 0",
	}
	for _, src := range valid {
		if err := ValidateSource(src, known); err != nil {
			t.Errorf("ValidateSource(%q) error = %v, want nil", src, err)
		}
	}

	invalid := []struct {
		src  string
		want error
	}{
		{"(bedrooms.time + 1", ErrUnbalancedParens},
		{"bedrooms.time + 1)", ErrUnbalancedParens},
		{")bedrooms(", ErrUnbalancedParens},
		{"bedrooms > 1 ? 2", ErrUnbalancedTernary},
		{"bedrooms > 1 ? 2 : 3 : 4", ErrUnbalancedTernary},
		{"kitchens + 1", ErrUnknownField},
		{"bedrooms.colour", ErrUnknownAttribute},
		{"   ", ErrEmptyFormula},
	}
	for _, tt := range invalid {
		err := ValidateSource(tt.src, known)
		if !errors.Is(err, tt.want) {
			t.Errorf("ValidateSource(%q) error = %v, want %v", tt.src, err, tt.want)
		}
	}

	structural := []string{"1 +", "* 2", "1 2", "( )", "a ? : b"}
	for _, src := range structural {
		if err := ValidateSource(src, nil); !IsSyntaxError(err) {
			t.Errorf("ValidateSource(%q) error = %v, want SyntaxError", src, err)
		}
	}
}

func TestValidateElements(t *testing.T) {
	elements := []models.FormulaElement{field("bedrooms.time"), op("+"), field("windowcleaning.time")}
	if err := Validate(elements, []string{"bedrooms"}); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("Validate() error = %v, want ErrUnknownField", err)
	}
	if err := Validate(elements, []string{"bedrooms", "Window Cleaning"}); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

func TestValidateAwkwardCategoryNames(t *testing.T) {
	known := []string{"2nd Floor Rooms", "Crème Cleaning"}
	elements := []models.FormulaElement{
		field("2nd Floor Rooms.time"), op("+"), {Kind: models.ElementField, Reference: "Crème Cleaning", Attribute: "time"},
	}
	if err := Validate(elements, known); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}

	src, err := Source(elements)
	if err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	if src != "_2ndfloorrooms.time + cru00e8mecleaning.time" {
		t.Fatalf("Source() = %q", src)
	}

	ctx := Context{}
	ctx.Set("2nd Floor Rooms", Attributes{Time: 40})
	ctx.Set("Crème Cleaning", Attributes{Time: 25})
	got, err := Evaluate(models.Formula{Name: "Extra time", Elements: elements}, ctx)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got != 65 {
		t.Fatalf("Evaluate() = %v, want 65", got)
	}
}

func TestNestingLimit(t *testing.T) {
	src := strings.Repeat("(", maxDepth+1) + "1" + strings.Repeat(")", maxDepth+1)
	if _, err := Compile(src); !IsSyntaxError(err) {
		t.Fatalf("Compile(deep) error = %v, want SyntaxError", err)
	}
	src = strings.Repeat("-", maxDepth+1) + "1"
	if _, err := Compile(src); !IsSyntaxError(err) {
		t.Fatalf("Compile(deep unary) error = %v, want SyntaxError", err)
	}
}

func TestRefs(t *testing.T) {
	expr, err := Compile("bedrooms.time + Bedrooms.value + basetime")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	refs := expr.Refs()
	if len(refs) != 2 || refs[0] != "basetime" || refs[1] != "bedrooms" {
		t.Fatalf("Refs() = %v, want [basetime bedrooms]", refs)
	}
}

func TestElementsRoundTrip(t *testing.T) {
	src := "(bedrooms.time + bathrooms.time) * serviceType.time > 0 ? basetime : 1"
	elements, err := Elements(src)
	if err != nil {
		t.Fatalf("Elements() error = %v", err)
	}
	if got := len(elements); got != 13 {
		t.Fatalf("len(Elements()) = %d, want 13", got)
	}
	if elements[1].Kind != models.ElementField || elements[1].Reference != "bedrooms" || elements[1].Attribute != "time" {
		t.Fatalf("Elements()[1] = %+v, want bedrooms field with time attribute", elements[1])
	}

	want, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	got, err := CompileElements(elements)
	if err != nil {
		t.Fatalf("CompileElements() error = %v", err)
	}
	ctx := testContext()
	wantValue, _ := want.Eval(ctx)
	gotValue, err := got.Eval(ctx)
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	if gotValue != wantValue {
		t.Fatalf("Eval() = %v, want %v", gotValue, wantValue)
	}
}

func TestElementsRejectsStrings(t *testing.T) {
	if _, err := Elements(`bedrooms === 'x'`); !IsSyntaxError(err) {
		t.Fatalf("Elements() error = %v, want syntax error", err)
	}
	if _, err := Elements("   "); !errors.Is(err, ErrEmptyFormula) {
		t.Fatalf("Elements() error = %v, want ErrEmptyFormula", err)
	}
}
