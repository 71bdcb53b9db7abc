package market

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `symbol,date,open,high,low,close,volume
acme,2024-01-02,10.00,10.50,9.80,10.20,1500000
ACME,2024-01-03,10.20,10.80,10.10,10.75,1200000
beta,2024-01-02,55.10,55.90,54.00,54.20,800000
`

func TestParseCSV(t *testing.T) {
	bars, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, bars, 3)

	// symbol 统一大写
	assert.Equal(t, "ACME", bars[0].Symbol)
	assert.Equal(t, "2024-01-02", DateKey(bars[0].Date))
	assert.Equal(t, "10.20", bars[0].Close.StringFixed(2))
	assert.Equal(t, int64(1500000), bars[0].Volume)
	assert.Equal(t, "BETA", bars[2].Symbol)
}

func TestParseCSVWithoutHeader(t *testing.T) {
	bars, err := ParseCSV(strings.NewReader("acme,2024-01-02,10,11,9,10.5,1000\n"))
	require.NoError(t, err)
	require.Len(t, bars, 1)
}

func TestParseCSVRejectsBadRows(t *testing.T) {
	cases := map[string]string{
		"字段不足":      "acme,2024-01-02,10,11,9\n",
		"日期非法":      "acme,02/01/2024,10,11,9,10.5,1000\n",
		"价格非数值":     "acme,2024-01-02,ten,11,9,10.5,1000\n",
		"价格为负":      "acme,2024-01-02,-10,11,9,10.5,1000\n",
		"volume 非法": "acme,2024-01-02,10,11,9,10.5,many\n",
		"volume 为负": "acme,2024-01-02,10,11,9,10.5,-1\n",
		"symbol 为空": " ,2024-01-02,10,11,9,10.5,1000\n",
	}
	for name, raw := range cases {
		_, err := ParseCSV(strings.NewReader(raw))
		assert.Error(t, err, name)
	}
}

func TestLoadCSVMissingFile(t *testing.T) {
	_, err := LoadCSV("does/not/exist.csv")
	assert.Error(t, err)
}
