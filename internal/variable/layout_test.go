package variable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zclconf/go-cty/cty"
)

func testVars(t *testing.T) []Variable {
	t.Helper()
	return []Variable{
		MustDeclare("a", cty.NumberFloatVal(1)),
		MustDeclare("b", cty.ListVal([]cty.Value{
			cty.NumberFloatVal(1), cty.NumberFloatVal(2), cty.NumberFloatVal(3),
		})),
		MustDeclare("c", cty.NumberFloatVal(5)),
	}
}

func TestLayoutOffsetsAndWidth(t *testing.T) {
	l := NewLayout(testVars(t))
	assert.Equal(t, 5, l.Width())
	assert.Equal(t, 0, l.Offset(0))
	assert.Equal(t, 1, l.Offset(1))
	assert.Equal(t, 4, l.Offset(2))

	start, end := l.Range(1)
	assert.Equal(t, 1, start)
	assert.Equal(t, 4, end)
}

func TestLayoutIndexOf(t *testing.T) {
	l := NewLayout(testVars(t))
	assert.Equal(t, 0, l.IndexOf("a"))
	assert.Equal(t, 1, l.IndexOf("b"))
	assert.Equal(t, -1, l.IndexOf("missing"))
}

func TestLayoutDeclarationOrderPreserved(t *testing.T) {
	vars := []Variable{
		MustDeclare("z", cty.NumberFloatVal(1)),
		MustDeclare("a", cty.NumberFloatVal(2)),
	}
	l := NewLayout(vars)
	assert.Equal(t, "z", l.Vars()[0].Name())
	assert.Equal(t, "a", l.Vars()[1].Name())
}

func TestLayoutSliceAliasesBuffer(t *testing.T) {
	l := NewLayout(testVars(t))
	v := l.Combine()
	s := l.Slice(v, 1)
	s[0] = 99
	assert.Equal(t, 99.0, v[1])
}
