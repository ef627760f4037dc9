package history

import (
	"errors"
	"log"
	"os"
	"sort"
	"strconv"

	"vncconn/pkg/model"
	"vncconn/pkg/store"
)

// MaxItems caps how many profiles survive a save or load.
const MaxItems = 32

// Manager keeps the ordered, deduplicated connection history, most recent
// first, together with the settings remembered for each profile.
//
// Manager is not safe for concurrent use; all calls are expected from the
// goroutine driving the UI. Mutations stay in memory until Save.
type Manager struct {
	open     store.Opener
	logf     func(format string, args ...interface{})
	profiles []model.Profile
	protocol map[model.Profile]*model.ProtocolSettings
	ui       map[model.Profile]*model.UiSettings
}

// Option customises a Manager.
type Option func(*Manager)

// WithLogf replaces log.Printf for persistence diagnostics.
func WithLogf(logf func(format string, args ...interface{})) Option {
	return func(m *Manager) { m.logf = logf }
}

// New returns an empty Manager. Call Load to read the persisted history.
func New(open store.Opener, opts ...Option) *Manager {
	m := &Manager{open: open, logf: log.Printf}
	for _, opt := range opts {
		opt(m)
	}
	m.reset()
	return m
}

func (m *Manager) reset() {
	m.profiles = []model.Profile{}
	m.protocol = make(map[model.Profile]*model.ProtocolSettings)
	m.ui = make(map[model.Profile]*model.UiSettings)
}

// acquire opens the store; permission failures (sandboxed runs) are skipped
// silently, anything else is logged.
func (m *Manager) acquire(op string) (store.Store, bool) {
	if m.open == nil {
		return nil, false
	}
	st, err := m.open()
	if err != nil {
		if !errors.Is(err, os.ErrPermission) {
			m.logf("history %s: open store failed: %v", op, err)
		}
		return nil, false
	}
	return st, true
}

func (m *Manager) release(op string, st store.Store) {
	if err := st.Close(); err != nil {
		m.logf("history %s: close store failed: %v", op, err)
	}
}

type slotRef struct {
	name string
	num  int
}

// Load replaces the in-memory history with what the store holds. Slots are
// ordered by their numeric name (non-numeric names count as 0), slots without
// a host name are skipped, duplicates keep the first occurrence and accepted
// slots beyond MaxItems are removed from the store. Errors are logged and
// never abort the whole load.
func (m *Manager) Load() {
	m.reset()
	st, ok := m.acquire("load")
	if !ok {
		return
	}
	defer m.release("load", st)

	names, err := st.Children(RootNode)
	if err != nil {
		m.logf("history load: list slots failed: %v", err)
		return
	}
	slots := make([]slotRef, 0, len(names))
	for _, name := range names {
		num, err := strconv.Atoi(name)
		if err != nil {
			num = 0
		}
		slots = append(slots, slotRef{name: name, num: num})
	}
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].num != slots[j].num {
			return slots[i].num < slots[j].num
		}
		return slots[i].name < slots[j].name
	})

	seen := make(map[model.Profile]struct{}, len(slots))
	pruned := 0
	for _, sl := range slots {
		p, ok := m.readProfile(st, sl.name)
		if !ok {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		if len(m.profiles) >= MaxItems {
			if err := st.DeleteTree(store.Join(RootNode, sl.name)); err != nil {
				m.logf("history load: prune slot %s failed: %v", sl.name, err)
				continue
			}
			pruned++
			continue
		}
		m.profiles = append(m.profiles, p)
		if ps := m.readProtocolSettings(st, sl.name); ps != nil {
			m.protocol[p] = ps
		}
		if us := m.readUiSettings(st, sl.name); us != nil {
			m.ui[p] = us
		}
	}
	if pruned > 0 {
		if err := st.Flush(); err != nil {
			m.logf("history load: flush after prune failed: %v", err)
		}
		m.logf("history load: pruned %d slots beyond %d", pruned, MaxItems)
	}
}

// Save replaces the persisted history with up to MaxItems non-blank profiles,
// written front to back as slots 0..N-1.
func (m *Manager) Save() {
	st, ok := m.acquire("save")
	if !ok {
		return
	}
	defer m.release("save", st)

	if err := st.DeleteTree(RootNode); err != nil {
		m.logf("history save: clean storage failed: %v", err)
	}
	num := 0
	for _, p := range m.profiles {
		if num >= MaxItems {
			break
		}
		if p.IsBlank() {
			continue
		}
		m.writeSlot(st, num, p)
		num++
	}
	if err := st.Flush(); err != nil {
		m.logf("history save: flush failed: %v", err)
	}
}

// Clear erases the persisted history and empties the in-memory one.
func (m *Manager) Clear() {
	if st, ok := m.acquire("clear"); ok {
		if err := st.DeleteTree(RootNode); err != nil {
			m.logf("history clear: clean storage failed: %v", err)
		} else if err := st.Flush(); err != nil {
			m.logf("history clear: flush failed: %v", err)
		}
		m.release("clear", st)
	}
	m.reset()
}

// Reorder moves p to the front, dropping every other occurrence of it.
// A non-nil proto is merged into the settings already held for p (so other
// holders of that pointer see the update) or stored as a copy; a non-nil ui
// always replaces the previous value with a copy.
func (m *Manager) Reorder(p model.Profile, proto *model.ProtocolSettings, ui *model.UiSettings) {
	out := make([]model.Profile, 0, len(m.profiles)+1)
	out = append(out, p)
	for _, e := range m.profiles {
		if e != p {
			out = append(out, e)
		}
	}
	m.profiles = out

	if proto != nil {
		if saved, ok := m.protocol[p]; ok && saved != nil {
			saved.CopyDataFrom(proto)
		} else {
			m.protocol[p] = proto.Clone()
		}
	}
	if ui != nil {
		m.ui[p] = ui.Clone()
	}
}

// MostSuitable picks the history entry that best matches candidate, for
// pre-filling a connection dialog.
//
// The result starts as the front of the history (or candidate itself when the
// history is empty) and is returned as is for a nil or blank candidate. An
// exact match returns immediately. Otherwise each entry, in order, replaces
// the result when, first match wins per entry:
//   - its host matches candidate while the result's host does not;
//   - its host and port match candidate while the result's port does not;
//   - its host and port match candidate.
//
// ok is false only when both the history and candidate are empty.
func (m *Manager) MostSuitable(candidate *model.Profile) (model.Profile, bool) {
	var res model.Profile
	switch {
	case len(m.profiles) > 0:
		res = m.profiles[0]
	case candidate != nil:
		res = *candidate
	default:
		return model.Profile{}, false
	}
	if candidate == nil || candidate.IsBlank() {
		return res, true
	}
	orig := *candidate
	for _, e := range m.profiles {
		if orig == e {
			return e, true
		}
		sameHost := e.HostName == orig.HostName
		if sameHost && e.HostName != res.HostName {
			res = e
			continue
		}
		if sameHost && e.PortNumber == orig.PortNumber && e.PortNumber != res.PortNumber {
			res = e
			continue
		}
		if sameHost && e.PortNumber == orig.PortNumber {
			res = e
		}
	}
	return res, true
}

// ProtocolSettings returns the settings held for p, or nil.
func (m *Manager) ProtocolSettings(p model.Profile) *model.ProtocolSettings {
	return m.protocol[p]
}

// UiSettings returns the UI settings held for p, or nil.
func (m *Manager) UiSettings(p model.Profile) *model.UiSettings {
	return m.ui[p]
}

// Profiles returns a copy of the history, most recent first.
func (m *Manager) Profiles() []model.Profile {
	return append([]model.Profile(nil), m.profiles...)
}

func (m *Manager) Len() int { return len(m.profiles) }

func (m *Manager) IsEmpty() bool { return len(m.profiles) == 0 }
