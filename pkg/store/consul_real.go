//go:build consul

package store

import (
	"vncconn/pkg/consul"
)

// ConsulOpener returns an Opener backed by Consul KV (requires build tag consul).
func ConsulOpener(addr, token, prefix string) Opener {
	return func() (Store, error) {
		s, err := consul.NewStore(addr, token, prefix)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
