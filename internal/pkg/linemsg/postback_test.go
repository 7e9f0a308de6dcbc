package linemsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePostback(t *testing.T) {
	p, err := DecodePostback(`{"action":"answer","surveyId":"s","questionId":"q","optionValue":"OTHER","orderIndex":3}`)
	require.NoError(t, err)
	assert.Equal(t, ActionAnswer, p.Action)
	assert.Equal(t, 3, p.OrderIndex)
	assert.True(t, IsOther(p.OptionValue))

	_, err = DecodePostback("action=answer")
	assert.Error(t, err)

	_, err = DecodePostback("  ")
	assert.Error(t, err)
}

func TestIsOther(t *testing.T) {
	assert.True(t, IsOther("その他"))
	assert.True(t, IsOther(" OTHER "))
	assert.False(t, IsOther("other"))
	assert.False(t, IsOther(""))
}
