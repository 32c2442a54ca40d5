package uritemplate

import (
	"errors"
	"testing"

	"github.com/matryer/is"
)

func rfcValues() map[string]any {
	return map[string]any{
		"count":      []string{"one", "two", "three"},
		"dom":        []string{"example", "com"},
		"dub":        "me/too",
		"hello":      "Hello World!",
		"half":       "50%",
		"var":        "value",
		"who":        "fred",
		"base":       "http://example.com/home/",
		"path":       "/foo/bar",
		"list":       []string{"red", "green", "blue"},
		"keys":       Pairs{{"semi", ";"}, {"dot", "."}, {"comma", ","}},
		"v":          "6",
		"x":          "1024",
		"y":          "768",
		"empty":      "",
		"empty_keys": map[string]string{},
		"undef":      nil,
	}
}

func testExpansions(t *testing.T, cases map[string]string) {
	is := is.New(t)
	values := rfcValues()

	for template, expected := range cases {
		actual, ok := Expand(template, values)
		is.True(ok)                // template should expand
		is.Equal(actual, expected) // expansion should match
	}
}

func TestLevel1(t *testing.T) {
	testExpansions(t, map[string]string{
		"{var}":     "value",
		"{hello}":   "Hello%20World%21",
		"{half}":    "50%25",
		"O{empty}X": "OX",
		"O{undef}X": "OX",
	})
}

func TestLevel2(t *testing.T) {
	testExpansions(t, map[string]string{
		"{+var}":              "value",
		"{+hello}":            "Hello%20World!",
		"{+half}":             "50%25",
		"{base}index":         "http%3A%2F%2Fexample.com%2Fhome%2Findex",
		"{+base}index":        "http://example.com/home/index",
		"O{+empty}X":          "OX",
		"{+path}/here":        "/foo/bar/here",
		"here?ref={+path}":    "here?ref=/foo/bar",
		"up{+path}{var}/here": "up/foo/barvalue/here",
		"X{#var}":             "X#value",
		"X{#hello}":           "X#Hello%20World!",
		"{#half}":             "#50%25",
		"foo{#empty}":         "foo#",
		"foo{#undef}":         "foo",
	})
}

func TestLevel3(t *testing.T) {
	testExpansions(t, map[string]string{
		"map?{x,y}":      "map?1024,768",
		"{x,hello,y}":    "1024,Hello%20World%21,768",
		"?{x,empty}":     "?1024,",
		"?{x,undef}":     "?1024",
		"?{undef,y}":     "?768",
		"{+x,hello,y}":   "1024,Hello%20World!,768",
		"{+path,x}/here": "/foo/bar,1024/here",
		"{#x,hello,y}":   "#1024,Hello%20World!,768",
		"{#path,x}/here": "#/foo/bar,1024/here",
		"X{.var}":        "X.value",
		"X{.x,y}":        "X.1024.768",
		"{.who}":         ".fred",
		"{.who,who}":     ".fred.fred",
		"{.half,who}":    ".50%25.fred",
		"X{.empty}":      "X.",
		"X{.undef}":      "X",
		"{/who}":         "/fred",
		"{/who,who}":     "/fred/fred",
		"{/half,who}":    "/50%25/fred",
		"{/who,dub}":     "/fred/me%2Ftoo",
		"{/var}":         "/value",
		"{/var,empty}":   "/value/",
		"{/var,undef}":   "/value",
		"{/var,x}/here":  "/value/1024/here",
		"{;who}":         ";who=fred",
		"{;half}":        ";half=50%25",
		"{;empty}":       ";empty",
		"{;v,empty,who}": ";v=6;empty;who=fred",
		"{;v,bar,who}":   ";v=6;who=fred",
		"{;x,y}":         ";x=1024;y=768",
		"{;x,y,empty}":   ";x=1024;y=768;empty",
		"{;x,y,undef}":   ";x=1024;y=768",
		"{?who}":         "?who=fred",
		"{?half}":        "?half=50%25",
		"{?x,y}":         "?x=1024&y=768",
		"{?x,y,empty}":   "?x=1024&y=768&empty=",
		"{?x,y,undef}":   "?x=1024&y=768",
		"{&who}":         "&who=fred",
		"{&half}":        "&half=50%25",
		"?fixed=yes{&x}": "?fixed=yes&x=1024",
		"{&x,y,empty}":   "&x=1024&y=768&empty=",
	})
}

func TestLevel4(t *testing.T) {
	testExpansions(t, map[string]string{
		"{var:3}":         "val",
		"{var:30}":        "value",
		"{list}":          "red,green,blue",
		"{list*}":         "red,green,blue",
		"{keys}":          "semi,%3B,dot,.,comma,%2C",
		"{keys*}":         "semi=%3B,dot=.,comma=%2C",
		"{+path:6}/here":  "/foo/b/here",
		"{+list}":         "red,green,blue",
		"{+list*}":        "red,green,blue",
		"{+keys}":         "semi,;,dot,.,comma,,",
		"{+keys*}":        "semi=;,dot=.,comma=,",
		"{#path:6}/here":  "#/foo/b/here",
		"{#list}":         "#red,green,blue",
		"{#list*}":        "#red,green,blue",
		"{#keys}":         "#semi,;,dot,.,comma,,",
		"{#keys*}":        "#semi=;,dot=.,comma=,",
		"X{.var:3}":       "X.val",
		"X{.list}":        "X.red,green,blue",
		"X{.list*}":       "X.red.green.blue",
		"X{.keys}":        "X.semi,%3B,dot,.,comma,%2C",
		"X{.keys*}":       "X.semi=%3B.dot=..comma=%2C",
		"www{.dom*}":      "www.example.com",
		"{/var:1,var}":    "/v/value",
		"{/list}":         "/red,green,blue",
		"{/list*}":        "/red/green/blue",
		"{/list*,path:4}": "/red/green/blue/%2Ffoo",
		"{/keys}":         "/semi,%3B,dot,.,comma,%2C",
		"{/keys*}":        "/semi=%3B/dot=./comma=%2C",
		"{;hello:5}":      ";hello=Hello",
		"{;list}":         ";list=red,green,blue",
		"{;list*}":        ";list=red;list=green;list=blue",
		"{;keys}":         ";keys=semi,%3B,dot,.,comma,%2C",
		"{;keys*}":        ";semi=%3B;dot=.;comma=%2C",
		"{?var:3}":        "?var=val",
		"{?list}":         "?list=red,green,blue",
		"{?list*}":        "?list=red&list=green&list=blue",
		"{?keys}":         "?keys=semi,%3B,dot,.,comma,%2C",
		"{?keys*}":        "?semi=%3B&dot=.&comma=%2C",
		"{&var:3}":        "&var=val",
		"{&list}":         "&list=red,green,blue",
		"{&list*}":        "&list=red&list=green&list=blue",
		"{&keys}":         "&keys=semi,%3B,dot,.,comma,%2C",
		"{&keys*}":        "&semi=%3B&dot=.&comma=%2C",
		"{count}":         "one,two,three",
		"{count*}":        "one,two,three",
		"{/count}":        "/one,two,three",
		"{/count*}":       "/one/two/three",
		"{;count}":        ";count=one,two,three",
		"{;count*}":       ";count=one;count=two;count=three",
		"{?count}":        "?count=one,two,three",
		"{?count*}":       "?count=one&count=two&count=three",
		"{&count*}":       "&count=one&count=two&count=three",
		"{?empty_keys}":   "",
		"{?empty_keys*}":  "",
	})
}

func TestQueryExpansionWithNumbers(t *testing.T) {
	is := is.New(t)
	tmpl := Compile("/data{?page,size,sort}")
	is.NoErr(tmpl.Err())

	uri, ok := tmpl.Fill(map[string]any{"page": 1, "size": 100, "sort": "id"})
	is.True(ok)
	is.Equal(uri, "/data?page=1&size=100&sort=id")

	uri, ok = tmpl.Fill(map[string]any{})
	is.True(ok)
	is.Equal(uri, "/data")
}

func TestMapsExpandInSortedKeyOrder(t *testing.T) {
	is := is.New(t)

	uri, ok := Expand("/search{?params*}", map[string]any{
		"params": map[string]any{"q": "hal client", "lang": "sv", "skip": nil},
	})

	is.True(ok)
	is.Equal(uri, "/search?lang=sv&q=hal%20client")
}

func TestScalarFormatting(t *testing.T) {
	is := is.New(t)

	uri, ok := Expand("{a,b,c,d}", map[string]any{"a": true, "b": 2.5, "c": uint8(7), "d": int64(-3)})
	is.True(ok)
	is.Equal(uri, "true,2.5,7,-3")
}

func TestPrefixCountsCharactersNotBytes(t *testing.T) {
	is := is.New(t)

	uri, ok := Expand("{word:2}", map[string]any{"word": "åäö"})
	is.True(ok)
	is.Equal(uri, "%C3%A5%C3%A4")
}

func TestReservedExpansionKeepsPercentTriplets(t *testing.T) {
	is := is.New(t)

	uri, ok := Expand("{+p}", map[string]any{"p": "a%20b%zz"})
	is.True(ok)
	is.Equal(uri, "a%20b%25zz")
}

func TestMalformedTemplatesAreInErrorState(t *testing.T) {
	is := is.New(t)

	cases := map[string]error{
		"{var":             ErrUnbalancedBraces,
		"var}":             ErrUnbalancedBraces,
		"{a{b}}":           ErrUnbalancedBraces,
		"{}":               ErrEmptyExpression,
		"{var:prefix}":     ErrInvalidPrefix,
		"{var:}":           ErrInvalidPrefix,
		"{var:10000}":      ErrInvalidPrefix,
		"{var:0}":          ErrInvalidPrefix,
		"{var:05}":         ErrInvalidPrefix,
		"{hello:2*}":       ErrExplodeWithPrefix,
		"{?empty=default}": ErrInvalidVarName,
		"{with space}":     ErrInvalidVarName,
		"{x,}":             ErrInvalidVarName,
		"{=path}":          ErrInvalidVarName,
	}

	for template, expected := range cases {
		tmpl := Compile(template)
		is.True(errors.Is(tmpl.Err(), expected)) // template should be in the expected error state

		result, ok := tmpl.Fill(rfcValues())
		is.True(!ok)         // filling a broken template yields no result
		is.Equal(result, "") // and no partial output
	}
}

func TestPercentEncodedVariableNamesAreAllowed(t *testing.T) {
	is := is.New(t)

	tmpl := Compile("{a%20b}")
	is.NoErr(tmpl.Err())

	uri, ok := tmpl.Fill(map[string]any{"a%20b": "x"})
	is.True(ok)
	is.Equal(uri, "x")
}

func TestFillFailsOnPrefixedMap(t *testing.T) {
	is := is.New(t)

	for _, template := range []string{"{keys:1}", "{+keys:1}", "{?keys:1}"} {
		tmpl := Compile(template)
		is.NoErr(tmpl.Err())

		_, ok := tmpl.Fill(rfcValues())
		is.True(!ok) // prefix on an associative value aborts the fill
	}
}

func TestFillFailsOnUnsupportedValues(t *testing.T) {
	is := is.New(t)

	_, ok := Expand("{nested}", map[string]any{"nested": []any{[]string{"a"}}})
	is.True(!ok)

	_, ok = Expand("{fn}", map[string]any{"fn": func() {}})
	is.True(!ok)
}

func TestVariables(t *testing.T) {
	is := is.New(t)

	tmpl := Compile("/orders/{id}{?page,size}{&page}")
	is.Equal(tmpl.Variables(), []string{"id", "page", "size"})
	is.Equal(tmpl.String(), "/orders/{id}{?page,size}{&page}")
}
