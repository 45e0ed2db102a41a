package pool

import (
	"sync"
	"testing"

	"github.com/andrei-cloud/go_reactor/internal/errorcodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAssignsDistinctPorts(t *testing.T) {
	ff := newFakeFactory()
	p, err := New(3, 9000, ff.build)
	require.NoError(t, err)

	assert.Equal(t, []int{9000, 9001, 9002}, p.Ports())
	seen := make(map[int]bool)
	for _, eng := range p.Engines() {
		assert.False(t, seen[eng.DebugPort()], "duplicate port %d", eng.DebugPort())
		seen[eng.DebugPort()] = true
	}
	assert.Len(t, seen, 3)
	assert.Equal(t, 1, p.Generation())
}

func TestNewRejectsInvalidSize(t *testing.T) {
	_, err := New(0, 9000, newFakeFactory().build)
	assert.ErrorIs(t, err, errorcodes.ErrInvalidPoolSize)
}

func TestNewConstructionFailureClosesBuilt(t *testing.T) {
	ff := newFakeFactory()
	ff.failOn = 1

	_, err := New(3, 9000, ff.build)
	require.ErrorIs(t, err, errorcodes.ErrEngineConstruction)
	require.Len(t, ff.built, 1)
	assert.True(t, ff.built[0].closed)
}

func TestCheckoutExhaustionAndCheckin(t *testing.T) {
	p, err := New(2, 9000, newFakeFactory().build)
	require.NoError(t, err)

	h1, err := p.Checkout()
	require.NoError(t, err)
	assert.Equal(t, 9000, h1.DebugPort())

	h2, err := p.Checkout()
	require.NoError(t, err)
	assert.Equal(t, 9001, h2.DebugPort())

	_, err = p.Checkout()
	assert.ErrorIs(t, err, errorcodes.ErrResourceExhausted)

	p.Checkin(h1)
	assert.Equal(t, 1, h1.(*fakeEngine).released)

	h3, err := p.Checkout()
	require.NoError(t, err)
	assert.Same(t, h1, h3)
}

func TestCheckinIgnoresFreeAndUnknown(t *testing.T) {
	ff := newFakeFactory()
	p, err := New(1, 9000, ff.build)
	require.NoError(t, err)

	eng := ff.built[0]
	p.Checkin(eng)
	assert.Equal(t, 0, eng.released)

	stranger := &fakeEngine{port: 1234, log: ff.log, modules: map[string]string{}}
	p.Checkin(stranger)
	assert.Equal(t, 0, stranger.released)

	p.Checkin(nil)
}

func TestConcurrentCheckoutIsExclusive(t *testing.T) {
	p, err := New(4, 9000, newFakeFactory().build)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		got  = make(map[Engine]int)
		errs int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eng, err := p.Checkout()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs++
				return
			}
			got[eng]++
		}()
	}
	wg.Wait()

	assert.Len(t, got, 4)
	for _, n := range got {
		assert.Equal(t, 1, n)
	}
	assert.Equal(t, 12, errs)
}

func TestRebuildInvalidatesOldHandles(t *testing.T) {
	ff := newFakeFactory()
	p, err := New(2, 9000, ff.build)
	require.NoError(t, err)

	old, err := p.Checkout()
	require.NoError(t, err)

	require.NoError(t, p.Rebuild())
	assert.Equal(t, 2, p.Generation())
	assert.True(t, old.(*fakeEngine).closed)

	// the old handle is unknown: checkin is a no-op and nothing stays busy.
	p.Checkin(old)
	for _, st := range p.Status() {
		assert.False(t, st.Busy)
	}

	fresh, err := p.Checkout()
	require.NoError(t, err)
	assert.NotSame(t, old, fresh)
	assert.Equal(t, 9000, fresh.DebugPort())
}

func TestRebuildFailureKeepsCurrentSet(t *testing.T) {
	ff := newFakeFactory()
	p, err := New(2, 9000, ff.build)
	require.NoError(t, err)
	before := p.Engines()

	ff.failOn = ff.created + 1
	require.ErrorIs(t, p.Rebuild(), errorcodes.ErrEngineConstruction)

	assert.Equal(t, before, p.Engines())
	assert.Equal(t, 1, p.Generation())
}

func TestLookupAndStatus(t *testing.T) {
	p, err := New(2, 9000, newFakeFactory().build)
	require.NoError(t, err)

	h, err := p.Checkout()
	require.NoError(t, err)

	eng, busy, ok := p.Lookup(9000)
	require.True(t, ok)
	assert.True(t, busy)
	assert.Same(t, h, eng)

	_, _, ok = p.Lookup(7000)
	assert.False(t, ok)

	assert.Equal(t, []EntryStatus{{Port: 9000, Busy: true}, {Port: 9001, Busy: false}}, p.Status())
}

func TestCloseClosesAll(t *testing.T) {
	ff := newFakeFactory()
	p, err := New(2, 9000, ff.build)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	for _, eng := range ff.built {
		assert.True(t, eng.closed)
	}

	_, err = p.Checkout()
	assert.ErrorIs(t, err, errorcodes.ErrResourceExhausted)
}
