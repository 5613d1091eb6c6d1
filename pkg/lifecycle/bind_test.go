package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestResolveBindTarget(t *testing.T) {
	tests := []struct {
		name    string
		opts    BindOptions
		want    Address
		wantErr error
	}{
		{
			name: "NothingSetUsesDefault",
			opts: BindOptions{},
			want: Address{Kind: AddressDefault},
		},
		{
			name: "UnixSocketOnly",
			opts: BindOptions{UnixSocket: strPtr("/tmp/mini.sock")},
			want: Address{Kind: AddressUnix, Path: "/tmp/mini.sock"},
		},
		{
			name: "BindHostAndPort",
			opts: BindOptions{Bind: strPtr("example:9000")},
			want: Address{Kind: AddressHostname, Hostname: "example", Port: 9000, HasPort: true},
		},
		{
			name: "BindEmptyHostKeepsDefaultHost",
			opts: BindOptions{Bind: strPtr(":9000")},
			want: Address{Kind: AddressHostname, Port: 9000, HasPort: true},
		},
		{
			name: "BindUnparsablePortKeepsDefaultPort",
			opts: BindOptions{Bind: strPtr("example:http")},
			want: Address{Kind: AddressHostname, Hostname: "example"},
		},
		{
			name: "BindWithoutColonIsHostname",
			opts: BindOptions{Bind: strPtr("example")},
			want: Address{Kind: AddressHostname, Hostname: "example"},
		},
		{
			name: "BindSplitsOnLastColon",
			opts: BindOptions{Bind: strPtr("[::1]:8081")},
			want: Address{Kind: AddressHostname, Hostname: "::1", Port: 8081, HasPort: true},
		},
		{
			name:    "BindPortOutOfRange",
			opts:    BindOptions{Bind: strPtr("example:70000")},
			wantErr: ErrPortOutOfRange,
		},
		{
			name:    "BindNegativePort",
			opts:    BindOptions{Bind: strPtr("example:-1")},
			wantErr: ErrPortOutOfRange,
		},
		{
			name:    "PortOutOfRange",
			opts:    BindOptions{Port: intPtr(70000)},
			wantErr: ErrPortOutOfRange,
		},
		{
			name:    "NegativePort",
			opts:    BindOptions{Hostname: strPtr("localhost"), Port: intPtr(-1)},
			wantErr: ErrPortOutOfRange,
		},
		{
			name: "HostnameOnly",
			opts: BindOptions{Hostname: strPtr("0.0.0.0")},
			want: Address{Kind: AddressHostname, Hostname: "0.0.0.0"},
		},
		{
			name: "PortOnly",
			opts: BindOptions{Port: intPtr(9090)},
			want: Address{Kind: AddressHostname, Port: 9090, HasPort: true},
		},
		{
			name: "HostnameAndPort",
			opts: BindOptions{Hostname: strPtr("localhost"), Port: intPtr(0)},
			want: Address{Kind: AddressHostname, Hostname: "localhost", Port: 0, HasPort: true},
		},
		{
			name:    "SocketAndBindConflict",
			opts:    BindOptions{UnixSocket: strPtr("/tmp/s"), Bind: strPtr("a:1")},
			wantErr: ErrConflictingBindOptions,
		},
		{
			name:    "SocketAndHostnameConflict",
			opts:    BindOptions{UnixSocket: strPtr("/tmp/s"), Hostname: strPtr("a")},
			wantErr: ErrConflictingBindOptions,
		},
		{
			name:    "SocketAndPortConflict",
			opts:    BindOptions{UnixSocket: strPtr("/tmp/s"), Port: intPtr(1)},
			wantErr: ErrConflictingBindOptions,
		},
		{
			name:    "BindAndPortConflict",
			opts:    BindOptions{Bind: strPtr("a:1"), Port: intPtr(2)},
			wantErr: ErrConflictingBindOptions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveBindTarget(tt.opts)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddressResolve(t *testing.T) {
	tests := []struct {
		name        string
		addr        Address
		wantNetwork string
		wantAddress string
	}{
		{"Default", Address{Kind: AddressDefault}, "tcp", "127.0.0.1:8080"},
		{"HostOnly", Address{Kind: AddressHostname, Hostname: "example"}, "tcp", "example:8080"},
		{"PortOnly", Address{Kind: AddressHostname, Port: 9000, HasPort: true}, "tcp", "127.0.0.1:9000"},
		{"EphemeralPort", Address{Kind: AddressHostname, Port: 0, HasPort: true}, "tcp", "127.0.0.1:0"},
		{"IPv6", Address{Kind: AddressHostname, Hostname: "::1", Port: 1, HasPort: true}, "tcp", "[::1]:1"},
		{"Unix", Address{Kind: AddressUnix, Path: "/run/mini.sock"}, "unix", "/run/mini.sock"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			network, address := tt.addr.Resolve(DefaultHost, DefaultPort)
			assert.Equal(t, tt.wantNetwork, network)
			assert.Equal(t, tt.wantAddress, address)
		})
	}
}

func TestAddressString(t *testing.T) {
	assert.Equal(t, "<default>", Address{}.String())
	assert.Equal(t, "unix:/tmp/s", Address{Kind: AddressUnix, Path: "/tmp/s"}.String())
	assert.Equal(t, "example:<default>", Address{Kind: AddressHostname, Hostname: "example"}.String())
	assert.Equal(t, "<default>:80", Address{Kind: AddressHostname, Port: 80, HasPort: true}.String())
	assert.Equal(t, "hostname", AddressHostname.String())
}
