package history

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vncconn/pkg/model"
	"vncconn/pkg/store"
)

type logSink struct {
	mu    sync.Mutex
	lines []string
}

func (l *logSink) logf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func newManager(t *testing.T, open store.Opener) (*Manager, *logSink) {
	t.Helper()
	sink := &logSink{}
	return New(open, WithLogf(sink.logf)), sink
}

func hosts(ps []model.Profile) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.HostName)
	}
	return out
}

func putSlot(t *testing.T, st store.Store, slot, host, port string) {
	t.Helper()
	if host != "" {
		require.NoError(t, st.Put(slotKey(slot, NodeHostName), []byte(host)))
	}
	if port != "" {
		require.NoError(t, st.Put(slotKey(slot, NodePortNumber), []byte(port)))
	}
}

var (
	profA = model.NewProfile("a", 1)
	profB = model.NewProfile("b", 2)
	profC = model.NewProfile("c", 3)
)

func TestReorderDeduplicates(t *testing.T) {
	m, _ := newManager(t, nil)
	for _, p := range []model.Profile{profA, profB, profA, profC, profA} {
		m.Reorder(p, nil, nil)
	}
	assert.Equal(t, []model.Profile{profA, profC, profB}, m.Profiles())

	count := 0
	for _, p := range m.Profiles() {
		if p == profA {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestSaveLoadPreservesOrder(t *testing.T) {
	st := store.NewMemoryStore()
	m, _ := newManager(t, st.Opener())
	m.Reorder(profC, nil, nil)
	m.Reorder(profB, nil, nil)
	m.Reorder(profA, nil, nil)
	m.Save()

	host, ok, err := st.Get("connectionsHistory/0/hostName")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", string(host))
	port, _, _ := st.Get("connectionsHistory/0/portNumber")
	assert.Equal(t, "1", string(port))

	loaded, _ := newManager(t, st.Opener())
	loaded.Load()
	assert.Equal(t, []model.Profile{profA, profB, profC}, loaded.Profiles())

	flushes, closes := st.Stats()
	assert.Equal(t, 1, flushes)
	assert.Equal(t, 2, closes)
}

func TestSaveCapsAtMaxItems(t *testing.T) {
	st := store.NewMemoryStore()
	m, _ := newManager(t, st.Opener())
	for i := 0; i < MaxItems+8; i++ {
		m.Reorder(model.NewProfile("host"+strconv.Itoa(i), 5900), nil, nil)
	}
	m.Save()

	loaded, _ := newManager(t, st.Opener())
	loaded.Load()
	require.Equal(t, MaxItems, loaded.Len())
	assert.Equal(t, "host"+strconv.Itoa(MaxItems+7), loaded.Profiles()[0].HostName)
	assert.Equal(t, "host8", loaded.Profiles()[MaxItems-1].HostName)
}

func TestSaveSkipsBlankHosts(t *testing.T) {
	st := store.NewMemoryStore()
	m, _ := newManager(t, st.Opener())
	m.Reorder(profA, nil, nil)
	m.Reorder(model.NewProfile("   ", 5900), nil, nil)
	m.Reorder(profB, nil, nil)
	m.Save()

	slots, err := st.Children(RootNode)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, slots)

	loaded, _ := newManager(t, st.Opener())
	loaded.Load()
	assert.Equal(t, []model.Profile{profB, profA}, loaded.Profiles())
}

func TestSaveReplacesPreviousSlots(t *testing.T) {
	st := store.NewMemoryStore()
	putSlot(t, st, "7", "stale", "1")
	m, _ := newManager(t, st.Opener())
	m.Reorder(profA, nil, nil)
	m.Save()

	slots, err := st.Children(RootNode)
	require.NoError(t, err)
	assert.Equal(t, []string{"0"}, slots)
}

func TestSettingsSurviveRoundTrip(t *testing.T) {
	st := store.NewMemoryStore()
	m, _ := newManager(t, st.Opener())
	proto := model.DefaultProtocolSettings()
	proto.CompressionLevel = 5
	proto.ViewOnly = true
	ui := model.DefaultUiSettings()
	ui.Scaling = model.ScaleFit
	m.Reorder(profA, proto, ui)
	m.Reorder(profB, nil, nil)
	m.Save()

	loaded, _ := newManager(t, st.Opener())
	loaded.Load()
	assert.Equal(t, proto, loaded.ProtocolSettings(profA))
	assert.Equal(t, ui, loaded.UiSettings(profA))
	assert.Nil(t, loaded.ProtocolSettings(profB))
	assert.Nil(t, loaded.UiSettings(profB))
}

func TestLoadRefinesProtocolSettings(t *testing.T) {
	st := store.NewMemoryStore()
	putSlot(t, st, "0", "a", "1")
	bad := model.DefaultProtocolSettings()
	bad.ColorDepth = 7
	bad.CompressionLevel = 42
	b, err := bad.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, st.Put(slotKey("0", NodeProtocolSettings), b))

	m, _ := newManager(t, st.Opener())
	m.Load()
	ps := m.ProtocolSettings(profA)
	require.NotNil(t, ps)
	assert.Equal(t, 0, ps.ColorDepth)
	assert.Equal(t, -1, ps.CompressionLevel)
}

func TestLoadTreatsCorruptBlobsAsAbsent(t *testing.T) {
	st := store.NewMemoryStore()
	putSlot(t, st, "0", "a", "1")
	require.NoError(t, st.Put(slotKey("0", NodeProtocolSettings), []byte{9, '{', '}'}))
	require.NoError(t, st.Put(slotKey("0", NodeUiSettings), []byte{1, 'x'}))

	m, sink := newManager(t, st.Opener())
	m.Load()
	assert.Equal(t, []model.Profile{profA}, m.Profiles())
	assert.Nil(t, m.ProtocolSettings(profA))
	assert.Nil(t, m.UiSettings(profA))
	assert.Len(t, sink.lines, 2)
}

func TestLoadSlotRules(t *testing.T) {
	st := store.NewMemoryStore()
	putSlot(t, st, "1", "b", "2")
	putSlot(t, st, "abc", "z", "7")
	putSlot(t, st, "0", "a", "1")
	putSlot(t, st, "2", "", "9")      // no host name
	putSlot(t, st, "3", "a", "1")     // duplicate of slot 0
	putSlot(t, st, "4", "c", "oops")  // malformed port
	putSlot(t, st, "10", "d", "5900") // numeric, not lexical, order

	m, _ := newManager(t, st.Opener())
	m.Load()
	assert.Equal(t, []string{"a", "z", "b", "c", "d"}, hosts(m.Profiles()))
	assert.Equal(t, 0, m.Profiles()[3].PortNumber)
}

func TestLoadPrunesBeyondMaxItems(t *testing.T) {
	st := store.NewMemoryStore()
	for i := 0; i < MaxItems+5; i++ {
		putSlot(t, st, strconv.Itoa(i), "host"+strconv.Itoa(i), "5900")
	}

	m, sink := newManager(t, st.Opener())
	m.Load()
	require.Equal(t, MaxItems, m.Len())
	assert.Equal(t, "host0", m.Profiles()[0].HostName)

	slots, err := st.Children(RootNode)
	require.NoError(t, err)
	assert.Len(t, slots, MaxItems)
	_, ok, _ := st.Get(slotKey(strconv.Itoa(MaxItems), NodeHostName))
	assert.False(t, ok)
	assert.NotEmpty(t, sink.lines)
}

func TestMostSuitable(t *testing.T) {
	x1 := model.NewProfile("x", 1)
	y2 := model.NewProfile("y", 2)
	a1 := model.NewProfile("a", 1)
	b2 := model.NewProfile("b", 2)

	t.Run("exact match", func(t *testing.T) {
		m, _ := newManager(t, nil)
		m.Reorder(y2, nil, nil)
		m.Reorder(x1, nil, nil)
		c := model.NewProfile("y", 2)
		got, ok := m.MostSuitable(&c)
		assert.True(t, ok)
		assert.Equal(t, y2, got)
	})

	t.Run("empty candidate returns front", func(t *testing.T) {
		m, _ := newManager(t, nil)
		m.Reorder(y2, nil, nil)
		m.Reorder(x1, nil, nil)
		got, ok := m.MostSuitable(nil)
		assert.True(t, ok)
		assert.Equal(t, x1, got)

		blank := model.NewProfile("", 0)
		got, ok = m.MostSuitable(&blank)
		assert.True(t, ok)
		assert.Equal(t, x1, got)
	})

	t.Run("empty history returns candidate", func(t *testing.T) {
		m, _ := newManager(t, nil)
		c := model.NewProfile("fresh", 5901)
		got, ok := m.MostSuitable(&c)
		assert.True(t, ok)
		assert.Equal(t, c, got)

		_, ok = m.MostSuitable(nil)
		assert.False(t, ok)
	})

	t.Run("host tier", func(t *testing.T) {
		m, _ := newManager(t, nil)
		m.Reorder(b2, nil, nil)
		m.Reorder(a1, nil, nil)
		c := model.NewProfile("b", 9)
		got, _ := m.MostSuitable(&c)
		assert.Equal(t, b2, got)
	})

	t.Run("port tier overrides host tier on a later entry", func(t *testing.T) {
		b9 := model.NewProfile("b", 9)
		m, _ := newManager(t, nil)
		m.Reorder(b9, nil, nil)
		m.Reorder(b2, nil, nil)
		m.Reorder(a1, nil, nil)
		c := b9
		c.UseSSH = true
		got, _ := m.MostSuitable(&c)
		assert.Equal(t, b9, got)
	})

	t.Run("no match keeps front", func(t *testing.T) {
		m, _ := newManager(t, nil)
		m.Reorder(b2, nil, nil)
		m.Reorder(a1, nil, nil)
		c := model.NewProfile("q", 1)
		got, _ := m.MostSuitable(&c)
		assert.Equal(t, a1, got)
	})
}

func TestReorderMergesProtocolSettingsInPlace(t *testing.T) {
	m, _ := newManager(t, nil)
	first := model.DefaultProtocolSettings()
	m.Reorder(profA, first, nil)
	held := m.ProtocolSettings(profA)
	require.NotNil(t, held)
	assert.NotSame(t, first, held)

	second := model.DefaultProtocolSettings()
	second.JPEGQuality = 2
	m.Reorder(profA, second, nil)
	assert.Same(t, held, m.ProtocolSettings(profA))
	assert.Equal(t, 2, held.JPEGQuality)

	m.Reorder(profA, nil, nil)
	assert.Same(t, held, m.ProtocolSettings(profA))
}

func TestReorderReplacesUiSettings(t *testing.T) {
	m, _ := newManager(t, nil)
	first := model.DefaultUiSettings()
	m.Reorder(profA, nil, first)
	held := m.UiSettings(profA)

	second := model.DefaultUiSettings()
	second.FullScreen = true
	m.Reorder(profA, nil, second)
	assert.NotSame(t, held, m.UiSettings(profA))
	assert.False(t, held.FullScreen)
	assert.True(t, m.UiSettings(profA).FullScreen)
}

func TestClear(t *testing.T) {
	st := store.NewMemoryStore()
	m, _ := newManager(t, st.Opener())
	m.Reorder(profA, model.DefaultProtocolSettings(), nil)
	m.Save()
	m.Clear()

	assert.True(t, m.IsEmpty())
	assert.Nil(t, m.ProtocolSettings(profA))
	assert.Empty(t, st.Keys())
}

func TestPermissionDeniedIsSilent(t *testing.T) {
	open := func() (store.Store, error) {
		return nil, fmt.Errorf("open history: %w", os.ErrPermission)
	}
	m, sink := newManager(t, open)
	m.Load()
	m.Reorder(profA, nil, nil)
	m.Save()
	m.Clear()
	assert.Empty(t, sink.lines)
	assert.True(t, m.IsEmpty())

	m.Reorder(profB, nil, nil)
	assert.Equal(t, []model.Profile{profB}, m.Profiles())
}

func TestOpenFailureIsLogged(t *testing.T) {
	open := func() (store.Store, error) { return nil, fmt.Errorf("disk on fire") }
	m, sink := newManager(t, open)
	m.Load()
	assert.Len(t, sink.lines, 1)
	assert.True(t, m.IsEmpty())
}

func TestSQLiteBackedHistory(t *testing.T) {
	open := store.SQLiteOpener(filepath.Join(t.TempDir(), "history.db"))
	m, sink := newManager(t, open)
	m.Reorder(profB, nil, nil)
	m.Reorder(profA, model.DefaultProtocolSettings(), model.DefaultUiSettings())
	m.Save()

	loaded, _ := newManager(t, open)
	loaded.Load()
	assert.Equal(t, []model.Profile{profA, profB}, loaded.Profiles())
	assert.Equal(t, model.DefaultProtocolSettings(), loaded.ProtocolSettings(profA))
	assert.Empty(t, sink.lines)
}
