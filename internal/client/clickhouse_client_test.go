package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractHostPort(t *testing.T) {
	cases := map[string]string{
		"http://localhost:9000":        "localhost:9000",
		"http://clickhouse":            "clickhouse:9000",
		"https://ch.example.com":       "ch.example.com:9440",
		"clickhouse://10.0.0.5:9000/":  "10.0.0.5:9000",
		"https://ch.example.com:19440": "ch.example.com:19440",
	}
	for in, want := range cases {
		assert.Equal(t, want, extractHostPort(in), in)
	}
	assert.Equal(t, "ch.example.com", extractHostname("https://ch.example.com:19440"))
}
