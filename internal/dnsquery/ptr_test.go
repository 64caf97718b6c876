package dnsquery

import (
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

var testAddr = [16]byte{0xfd, 0x87, 0xd8, 0x7e, 0xeb, 0x43, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}

func TestBuildPTRQueryHasWantedID(t *testing.T) {
	packed, err := BuildPTRQuery(testAddr, 0x1234)
	require.NoError(t, err)

	m := new(dns.Msg)
	require.NoError(t, m.Unpack(packed))
	require.Equal(t, uint16(0x1234), m.Id)
	require.Len(t, m.Question, 1)
	require.Equal(t, dns.TypePTR, m.Question[0].Qtype)
}

func TestParseResponseExtractsPTR(t *testing.T) {
	query, err := BuildPTRQuery(testAddr, 7)
	require.NoError(t, err)
	q := new(dns.Msg)
	require.NoError(t, q.Unpack(query))

	resp := new(dns.Msg)
	resp.SetReply(q)
	rr, err := dns.NewRR(q.Question[0].Name + " 300 IN PTR facebookcorewwwi.onion.")
	require.NoError(t, err)
	resp.Answer = append(resp.Answer, rr)

	packed, err := resp.Pack()
	require.NoError(t, err)

	name, ok, err := ParseResponse(packed, 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "facebookcorewwwi.onion", name)
}

func TestParseResponseIDMismatch(t *testing.T) {
	query, err := BuildPTRQuery(testAddr, 7)
	require.NoError(t, err)
	q := new(dns.Msg)
	require.NoError(t, q.Unpack(query))

	resp := new(dns.Msg)
	resp.SetReply(q)
	resp.Id = 99
	packed, err := resp.Pack()
	require.NoError(t, err)

	_, ok, err := ParseResponse(packed, 7)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestParseResponseMalformed(t *testing.T) {
	_, _, err := ParseResponse([]byte{1, 2, 3}, 1)
	require.Error(t, err)
}
