//go:build !consul

package store

import (
	"log"
)

// ConsulOpener returns a memory store when the consul build tag is not enabled.
func ConsulOpener(addr, _, prefix string) Opener {
	log.Printf("consul store requested (addr=%s prefix=%s) but consul build tag not enabled; using memory store", addr, prefix)
	return NewMemoryStore().Opener()
}
