package session

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(nil)
	assert.NoError(t, err)
	assert.True(t, ValidCode(code), "expected generated code %q to be valid", code)

	// an all-zero source yields the smallest code, which must stay zero padded
	code, err = GenerateCode(bytes.NewReader(make([]byte, 64)))
	assert.NoError(t, err)
	assert.Equal(t, "000000", code)

	_, err = GenerateCode(bytes.NewReader(nil))
	assert.Error(t, err, "expected error from exhausted reader")
}

func TestValidCode(t *testing.T) {
	assert.True(t, ValidCode("012345"))
	assert.False(t, ValidCode("12345"))
	assert.False(t, ValidCode("1234567"))
	assert.False(t, ValidCode("12a456"))
	assert.False(t, ValidCode(""))
}
