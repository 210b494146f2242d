package helpers

import (
	"testing"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
	"github.com/stretchr/testify/assert"
)

func TestAsJSONValue(t *testing.T) {
	assert.Equal(t, ldvalue.String("x"), AsJSONValue("x"))
	assert.Equal(t, ldvalue.Int(1), AsJSONValue(ldvalue.Int(1)))
	assert.Equal(t, ldvalue.Parse([]byte(`{"id":1}`)), AsJSONValue(map[string]interface{}{"id": 1}))
	assert.Equal(t, ldvalue.Null(), AsJSONValue(func() {}))
}

func TestCanonicalizedJSONString(t *testing.T) {
	v := ldvalue.Parse([]byte(`{"name":"bolt","id":1,"tags":[{"b":2,"a":1}]}`))
	assert.Equal(t, `{"id":1,"name":"bolt","tags":[{"a":1,"b":2}]}`, CanonicalizedJSONString(v))
	assert.Equal(t, `"x"`, CanonicalizedJSONString(ldvalue.String("x")))
	assert.Equal(t, `null`, CanonicalizedJSONString(ldvalue.Null()))
}
