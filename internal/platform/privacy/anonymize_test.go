package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymizeIP(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"ipv4", "192.168.1.47", "192.168.1.0"},
		{"ipv4 network address", "10.0.0.0", "10.0.0.0"},
		{"ipv4 loopback", "127.0.0.1", "127.0.0.0"},
		{"ipv4-mapped ipv6", "::ffff:203.0.113.9", "203.0.113.0"},
		{"ipv6", "2001:db8:85a3::8a2e:370:7334", "2001:db8:85a3::"},
		{"ipv6 loopback", "::1", "::"},
		{"ipv6 with zone", "fe80::1%eth0", "fe80::"},
		{"empty", "", "unknown"},
		{"already unknown", "unknown", "unknown"},
		{"garbage", "not-an-ip", "invalid"},
		{"ipv4 with port", "192.168.1.1:8080", "invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AnonymizeIP(tt.input))
		})
	}
}

func TestMaskAddress(t *testing.T) {
	addr := "addr_test1vzpwq95z3xyum8vqndgdd9mdnmafh3djcxnc6jemlgdmswcve6tkw"
	assert.Equal(t, "addr_test1vzpwq9...6tkw", MaskAddress(addr))
	assert.Equal(t, "**", MaskAddress("ab"))
	assert.Equal(t, "", MaskAddress(""))
}

func TestMaskIdentifier(t *testing.T) {
	assert.Equal(t, "*******001", MaskIdentifier("STU2024001", 3))
	assert.Equal(t, "***", MaskIdentifier("abc", 3))
	assert.Equal(t, "****", MaskIdentifier("abcd", 0))
	assert.Equal(t, "", MaskIdentifier("  ", 2))
}
