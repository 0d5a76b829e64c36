package lexer

import (
	"testing"
	"time"

	"tsnc/internal/source"
)

func tokenize(t *testing.T, src string) []Token {
	t.Helper()
	buf := source.New("<test>", []byte(src), time.Time{})
	toks, diags := Tokenize(buf)
	for _, d := range diags {
		t.Logf("diag: %s", d)
	}
	return toks
}

// S1 — numeric suffixes.
func TestNumericSuffixes(t *testing.T) {
	toks := tokenize(t, "1b 1ub 1ULL")
	want := []struct {
		kind Kind
		text string
	}{
		{KindNumber, "1"}, {KindNumberSuffix, "b"},
		{KindNumber, "1"}, {KindNumberSuffix, "ub"},
		{KindNumber, "1"}, {KindNumberSuffix, "ULL"},
		{KindEOF, ""},
	}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(toks), len(want), toks)
	}
	for i, w := range want {
		if toks[i].Kind != w.kind || toks[i].Text != w.text {
			t.Errorf("token %d: got (%s,%q) want (%s,%q)", i, toks[i].Kind, toks[i].Text, w.kind, w.text)
		}
	}
}

// S2 — dot after a fully formed number.
func TestDotAfterNumber(t *testing.T) {
	toks := tokenize(t, "0.4532.")
	if len(toks) != 3 {
		t.Fatalf("got %d tokens: %+v", len(toks), toks)
	}
	if toks[0].Kind != KindNumber || toks[0].Text != "0.4532" {
		t.Errorf("tok0 = %+v", toks[0])
	}
	if toks[1].Kind != KindDot || toks[1].Text != "." {
		t.Errorf("tok1 = %+v", toks[1])
	}
}

func TestStringForms(t *testing.T) {
	toks := tokenize(t, `'a' "b" ` + "`c${1+2}d`")
	if toks[0].Kind != KindString || toks[0].Lexeme != "a" {
		t.Errorf("single-quoted: %+v", toks[0])
	}
	if toks[1].Kind != KindString || toks[1].Lexeme != "b" {
		t.Errorf("double-quoted: %+v", toks[1])
	}
	if toks[2].Kind != KindTemplateString {
		t.Fatalf("template: %+v", toks[2])
	}
	if len(toks[2].Parts) != 3 {
		t.Fatalf("template parts = %+v", toks[2].Parts)
	}
	if toks[2].Parts[0].Text != "c" || !toks[2].Parts[1].IsExpr || toks[2].Parts[1].Text != "1+2" || toks[2].Parts[2].Text != "d" {
		t.Errorf("template parts wrong: %+v", toks[2].Parts)
	}
}

func TestUnterminatedString(t *testing.T) {
	buf := source.New("<test>", []byte(`"abc`), time.Time{})
	_, diags := Tokenize(buf)
	if len(diags) != 1 {
		t.Fatalf("want 1 diagnostic, got %d: %v", len(diags), diags)
	}
}

func TestOperatorLongestMatch(t *testing.T) {
	toks := tokenize(t, "<<= << < <=")
	want := []string{"<<=", "<<", "<", "<="}
	for i, w := range want {
		if toks[i].Text != w {
			t.Errorf("tok %d = %q want %q", i, toks[i].Text, w)
		}
	}
}

func TestUnaryMinusVsBinary(t *testing.T) {
	toks := tokenize(t, "a - 1")
	if toks[1].Kind != KindSymbol || toks[1].Text != "-" {
		t.Errorf("expected binary minus, got %+v", toks[1])
	}
	toks2 := tokenize(t, "(-1)")
	if toks2[1].Kind != KindNumber || toks2[1].Text != "-1" {
		t.Errorf("expected unary-minus number, got %+v", toks2[1])
	}
}
