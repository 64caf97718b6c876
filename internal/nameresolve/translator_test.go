package nameresolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocatsocks/internal/domain"
)

var testAddr = [16]byte{0xfd, 0x87, 0xd8, 0x7e, 0xeb, 0x43, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}

func TestEncodeDeterministic(t *testing.T) {
	a := Encode(domain.NetDesc{NameBits: 80}, testAddr)
	b := Encode(domain.NetDesc{NameBits: 80}, testAddr)
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a)
}

func TestTranslatorFallsBackToEncoding(t *testing.T) {
	tr := &Translator{
		HostsLookup: true,
		Hosts:       NewHostsStore(time.Minute),
		Net:         domain.NetDesc{NameBits: 80},
		Domain:      ".onion",
	}
	name, found := tr.Resolve(testAddr)
	require.False(t, found)
	assert.Contains(t, name, ".onion")
}

func TestTranslatorPrefersHostsHit(t *testing.T) {
	store := NewHostsStore(time.Minute)
	store.Put(testAddr, "facebookcorewwwi.onion", time.Minute)
	tr := &Translator{
		HostsLookup: true,
		Hosts:       store,
		Net:         domain.NetDesc{NameBits: 80},
		Domain:      ".onion",
	}
	name, found := tr.Resolve(testAddr)
	require.True(t, found)
	assert.Equal(t, "facebookcorewwwi.onion", name)
}

func TestTranslatorHostsLookupDisabled(t *testing.T) {
	store := NewHostsStore(time.Minute)
	store.Put(testAddr, "facebookcorewwwi.onion", time.Minute)
	tr := &Translator{
		HostsLookup: false,
		Hosts:       store,
		Net:         domain.NetDesc{NameBits: 80},
		Domain:      ".onion",
	}
	_, found := tr.Resolve(testAddr)
	assert.False(t, found)
}
