package discovery_test

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/illmade-knight/go-dysonlocal/pkg/discovery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialFromInstance(t *testing.T) {
	testCases := []struct {
		instance string
		want     string
	}{
		{"438_NK6-EU-MHA0000A", "NK6-EU-MHA0000A"},
		{"475_NN2-EU-KEA1234A._dyson_mqtt._tcp.local.", "NN2-EU-KEA1234A"},
		{"360EYE-JH1-US-HBB1111A", "JH1-US-HBB1111A"},
		{"NK6-EU-MHA0000A", "NK6-EU-MHA0000A"},
	}
	for _, tc := range testCases {
		t.Run(tc.instance, func(t *testing.T) {
			assert.Equal(t, tc.want, discovery.SerialFromInstance(tc.instance))
		})
	}
}

func TestAnnouncementFromEntry(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("prefers IPv4", func(t *testing.T) {
		entry := zeroconf.NewServiceEntry("438_NK6-EU-MHA0000A", discovery.ServiceFan, discovery.DefaultDomain)
		entry.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.20")}
		entry.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
		entry.Port = 1883

		a, ok := discovery.AnnouncementFromEntry(entry, at)

		require.True(t, ok)
		assert.Equal(t, "NK6-EU-MHA0000A", a.Serial)
		assert.Equal(t, "192.168.1.20", a.Address)
		assert.Equal(t, 1883, a.Port)
		assert.Equal(t, at, a.At)
	})

	t.Run("falls back to IPv6", func(t *testing.T) {
		entry := zeroconf.NewServiceEntry("360EYE-JH1-US-HBB1111A", discovery.ServiceVacuum, discovery.DefaultDomain)
		entry.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}

		a, ok := discovery.AnnouncementFromEntry(entry, at)

		require.True(t, ok)
		assert.Equal(t, "fe80::1", a.Address)
	})

	t.Run("rejects entries without addresses", func(t *testing.T) {
		entry := zeroconf.NewServiceEntry("438_NK6-EU-MHA0000A", discovery.ServiceFan, discovery.DefaultDomain)
		_, ok := discovery.AnnouncementFromEntry(entry, at)
		assert.False(t, ok)

		_, ok = discovery.AnnouncementFromEntry(nil, at)
		assert.False(t, ok)
	})
}
