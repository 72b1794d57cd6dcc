package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	require.Equal(t, Config{}, Config{}.Validate())
	require.Equal(t, Config{Enabled: true, Instance: DefaultInstance}, Config{Enabled: true}.Validate())
	require.Equal(t, Config{Enabled: true, Instance: "lab"}, Config{Enabled: true, Instance: "lab"}.Validate())
}

func TestAddrOf(t *testing.T) {
	entry := zeroconf.NewServiceEntry("tracker", Service, Domain)
	_, ok := addrOf(entry)
	require.False(t, ok)

	entry.Port = 12000
	_, ok = addrOf(entry)
	require.False(t, ok)

	entry.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
	addr, ok := addrOf(entry)
	require.True(t, ok)
	require.Equal(t, "[fe80::1]:12000", addr)

	entry.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.20")}
	addr, ok = addrOf(entry)
	require.True(t, ok)
	require.Equal(t, "192.168.1.20:12000", addr)

	_, ok = addrOf(nil)
	require.False(t, ok)
}
