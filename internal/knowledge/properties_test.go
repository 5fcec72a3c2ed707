package knowledge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Interface(t *testing.T) {
	v := Map(map[string]Value{
		"name":   String("Kira"),
		"age":    Int(34),
		"score":  Float(0.91),
		"active": Bool(true),
		"tags":   List(String("lead"), String("pilot")),
	})

	got, ok := v.MapValue()
	require.True(t, ok)
	name, _ := got["name"].StringValue()
	assert.Equal(t, "Kira", name)

	plain := v.Interface().(map[string]interface{})
	assert.Equal(t, int64(34), plain["age"])
	assert.Equal(t, 0.91, plain["score"])
	assert.Equal(t, []interface{}{"lead", "pilot"}, plain["tags"])
}

func TestValue_JSONRoundTrip(t *testing.T) {
	orig := Map(map[string]Value{
		"department": String("screenplay"),
		"revision":   Float(3),
		"flags":      Map(map[string]Value{"draft": Bool(true)}),
	})

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var back Value
	require.NoError(t, json.Unmarshal(data, &back))

	m, ok := back.MapValue()
	require.True(t, ok)
	dept, _ := m["department"].StringValue()
	assert.Equal(t, "screenplay", dept)
	flags, ok := m["flags"].MapValue()
	require.True(t, ok)
	draft, _ := flags["draft"].BoolValue()
	assert.True(t, draft)
}

func TestProperties_Keys(t *testing.T) {
	p := Properties{"b": String("2"), "a": String("1"), "c": String("3")}
	assert.Equal(t, []string{"a", "b", "c"}, p.Keys())
}

func TestProperties_Clone(t *testing.T) {
	p := Properties{"k": String("v")}
	clone := p.Clone()
	clone["k2"] = String("v2")
	assert.Len(t, p, 1)
	assert.Nil(t, Properties(nil).Clone())
}
