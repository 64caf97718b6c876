package peer

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var addrA = [16]byte{0xfd, 0x87, 0xd8, 0x7e, 0xeb, 0x43, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestActivateFindsInsertedPeer(t *testing.T) {
	r := NewRegistry(discardLogger())
	Activate(r, discardLogger(), addrA, 42, 2*time.Second)

	p, release, found := r.Lookup(addrA)
	assert.True(t, found)
	assert.NotNil(t, p)
	release()
}

func TestLookupMissReturnsFalse(t *testing.T) {
	r := NewRegistry(discardLogger())
	_, _, found := r.Lookup(addrA)
	assert.False(t, found)
}

func TestLookupLocksUntilReleased(t *testing.T) {
	r := NewRegistry(discardLogger())
	r.Insert(addrA, 1, 0)

	_, release1, ok := r.Lookup(addrA)
	assert.True(t, ok)

	done := make(chan struct{})
	go func() {
		_, release2, ok := r.Lookup(addrA)
		assert.True(t, ok)
		release2()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second lookup should not have proceeded before release")
	case <-time.After(20 * time.Millisecond):
	}

	release1()
	<-done
}
