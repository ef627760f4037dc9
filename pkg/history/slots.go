package history

import (
	"strconv"
	"strings"

	"vncconn/pkg/model"
	"vncconn/pkg/store"
)

// Persisted layout: RootNode/<slot>/<field>.
const (
	RootNode             = "connectionsHistory"
	NodeHostName         = "hostName"
	NodePortNumber       = "portNumber"
	NodeProtocolSettings = "protocolSettings"
	NodeUiSettings       = "uiSettings"
)

func slotKey(slot, field string) string {
	return store.Join(RootNode, slot, field)
}

// readProfile returns false when the slot has no host name.
func (m *Manager) readProfile(st store.Store, slot string) (model.Profile, bool) {
	host, ok, err := st.Get(slotKey(slot, NodeHostName))
	if err != nil {
		m.logf("history load: read slot %s host failed: %v", slot, err)
		return model.Profile{}, false
	}
	if !ok {
		return model.Profile{}, false
	}
	port := 0
	if raw, ok, err := st.Get(slotKey(slot, NodePortNumber)); err != nil {
		m.logf("history load: read slot %s port failed: %v", slot, err)
	} else if ok {
		if n, err := strconv.Atoi(strings.TrimSpace(string(raw))); err == nil {
			port = n
		}
	}
	return model.NewProfile(string(host), port), true
}

func (m *Manager) readBlob(st store.Store, slot, field string) []byte {
	b, ok, err := st.Get(slotKey(slot, field))
	if err != nil {
		m.logf("history load: read slot %s %s failed: %v", slot, field, err)
		return nil
	}
	if !ok || len(b) == 0 {
		return nil
	}
	return b
}

func (m *Manager) readProtocolSettings(st store.Store, slot string) *model.ProtocolSettings {
	b := m.readBlob(st, slot, NodeProtocolSettings)
	if b == nil {
		return nil
	}
	ps := &model.ProtocolSettings{}
	if err := ps.UnmarshalBinary(b); err != nil {
		m.logf("history load: slot %s protocol settings ignored: %v", slot, err)
		return nil
	}
	ps.Refine()
	return ps
}

func (m *Manager) readUiSettings(st store.Store, slot string) *model.UiSettings {
	b := m.readBlob(st, slot, NodeUiSettings)
	if b == nil {
		return nil
	}
	us := &model.UiSettings{}
	if err := us.UnmarshalBinary(b); err != nil {
		m.logf("history load: slot %s ui settings ignored: %v", slot, err)
		return nil
	}
	return us
}

func (m *Manager) writeSlot(st store.Store, num int, p model.Profile) {
	slot := strconv.Itoa(num)
	if err := st.Put(slotKey(slot, NodeHostName), []byte(p.HostName)); err != nil {
		m.logf("history save: write slot %s failed: %v", slot, err)
		return
	}
	if err := st.Put(slotKey(slot, NodePortNumber), []byte(strconv.Itoa(p.PortNumber))); err != nil {
		m.logf("history save: write slot %s port failed: %v", slot, err)
	}
	if ps := m.protocol[p]; ps != nil {
		if b, err := ps.MarshalBinary(); err != nil {
			m.logf("history save: encode slot %s protocol settings failed: %v", slot, err)
		} else if err := st.Put(slotKey(slot, NodeProtocolSettings), b); err != nil {
			m.logf("history save: write slot %s protocol settings failed: %v", slot, err)
		}
	}
	if us := m.ui[p]; us != nil {
		if b, err := us.MarshalBinary(); err != nil {
			m.logf("history save: encode slot %s ui settings failed: %v", slot, err)
		} else if err := st.Put(slotKey(slot, NodeUiSettings), b); err != nil {
			m.logf("history save: write slot %s ui settings failed: %v", slot, err)
		}
	}
}
