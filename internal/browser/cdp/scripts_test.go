// internal/browser/cdp/scripts_test.go
package cdp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "plain", want: `"plain"`},
		{in: `a"b`, want: `"a\"b"`},
		{in: "line\nbreak", want: `"line\nbreak"`},
		// HTML-sensitive characters are escaped, which is still a valid JS literal.
		{in: "</script>", want: `"\u003c/script\u003e"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, jsString(tt.in))
	}
}

func TestEmbeddedScripts(t *testing.T) {
	assert.Contains(t, evaluateSerializer, "[Circular]")
	assert.Contains(t, selectOptionFunc, "HTMLSelectElement")
}

func TestEvaluateExpression(t *testing.T) {
	expr := evaluateExpression(`document.title = "x"`)
	assert.True(t, strings.HasPrefix(expr, "("))
	assert.True(t, strings.HasSuffix(expr, `)("document.title = \"x\"")`))
}

func TestSelectFunctionDeclaration(t *testing.T) {
	decl := selectFunctionDeclaration(`it's "quoted"`)
	assert.True(t, strings.HasPrefix(decl, "function() { return ("))
	assert.Contains(t, decl, `.call(this, "it's \"quoted\"")`)
}

func TestQuerySelectorExpression(t *testing.T) {
	assert.Equal(t, `document.querySelector("#main a[href='x']")`, querySelectorExpression("#main a[href='x']"))
}
