/*
 * classvm - a class-file virtual machine
 * Derived from the Jacobin project. Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package descriptor

import "testing"

func TestParseFieldPrimitives(t *testing.T) {
	cases := map[string]FieldKind{
		"B": Byte, "C": Char, "D": Double, "F": Float,
		"I": Int, "J": Long, "S": Short, "Z": Boolean,
	}
	for s, want := range cases {
		ft, err := ParseField(s)
		if err != nil {
			t.Fatalf("ParseField(%q): %v", s, err)
		}
		if ft.Kind != want {
			t.Errorf("ParseField(%q).Kind = %v, want %v", s, ft.Kind, want)
		}
		if ft.String() != s {
			t.Errorf("round trip: ParseField(%q).String() = %q", s, ft.String())
		}
	}
}

func TestParseFieldObjectReference(t *testing.T) {
	ft, err := ParseField("Ljava/lang/String;")
	if err != nil {
		t.Fatal(err)
	}
	if ft.Kind != ObjReference || ft.Class != "java/lang/String" {
		t.Fatalf("got %+v", ft)
	}
	if ft.String() != "Ljava/lang/String;" {
		t.Fatalf("round trip failed: %q", ft.String())
	}
}

func TestParseFieldNestedArray(t *testing.T) {
	ft, err := ParseField("[[B")
	if err != nil {
		t.Fatal(err)
	}
	if ft.Kind != ArrReference || ft.Elem.Kind != ArrReference || ft.Elem.Elem.Kind != Byte {
		t.Fatalf("got %+v", ft)
	}
	if ft.String() != "[[B" {
		t.Fatalf("round trip failed: %q", ft.String())
	}
}

func TestParseFieldRejectsEmptyAndTrailingInput(t *testing.T) {
	if _, err := ParseField(""); err == nil {
		t.Error("expected an error on an empty descriptor")
	}
	if _, err := ParseField("II"); err == nil {
		t.Error("expected an error on trailing characters")
	}
	if _, err := ParseField("Ljava/lang/String"); err == nil {
		t.Error("expected an error on an unterminated class name")
	}
}

func TestParseMethodRoundTrip(t *testing.T) {
	for _, s := range []string{
		"(IDLjava/lang/Thread;)Ljava/lang/Object;",
		"([[B)V",
	} {
		md, err := ParseMethod(s)
		if err != nil {
			t.Fatalf("ParseMethod(%q): %v", s, err)
		}
		if got := md.String(); got != s {
			t.Errorf("ParseMethod(%q).String() = %q", s, got)
		}
	}
}

func TestParseMethodVoidReturn(t *testing.T) {
	md, err := ParseMethod("([[B)V")
	if err != nil {
		t.Fatal(err)
	}
	if len(md.Params) != 1 || md.Params[0].Kind != ArrReference {
		t.Fatalf("got params %+v", md.Params)
	}
	if !md.Return.Void {
		t.Fatalf("expected a void return, got %+v", md.Return)
	}
}

func TestParseMethodRejectsMissingParens(t *testing.T) {
	if _, err := ParseMethod("IV"); err == nil {
		t.Error("expected an error without a leading '('")
	}
	if _, err := ParseMethod("(I"); err == nil {
		t.Error("expected an error on an unterminated parameter list")
	}
}
