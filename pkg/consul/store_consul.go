//go:build consul

package consul

import (
	"fmt"
	"sort"
	"strings"

	consulapi "github.com/hashicorp/consul/api"
)

// Store keeps history keys in Consul KV below a namespace prefix.
type Store struct {
	cli    *consulapi.Client
	prefix string
}

// NewStore builds a client for addr. prefix is prepended to every key
// (e.g. "vncconn/"); an empty prefix uses the KV root.
func NewStore(addr, token, prefix string) (*Store, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	if token != "" {
		cfg.Token = token
	}
	cli, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Store{cli: cli, prefix: prefix}, nil
}

func (s *Store) full(key string) string {
	return s.prefix + strings.TrimPrefix(key, "/")
}

func (s *Store) Children(path string) ([]string, error) {
	base := strings.TrimSuffix(s.full(path), "/") + "/"
	keys, _, err := s.cli.KV().Keys(base, "", nil)
	if err != nil {
		return nil, fmt.Errorf("consul keys %s: %w", base, err)
	}
	seen := map[string]struct{}{}
	out := []string{}
	for _, k := range keys {
		rest := strings.TrimPrefix(k, base)
		if i := strings.Index(rest, "/"); i >= 0 {
			rest = rest[:i]
		}
		if rest == "" {
			continue
		}
		if _, ok := seen[rest]; ok {
			continue
		}
		seen[rest] = struct{}{}
		out = append(out, rest)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Get(key string) ([]byte, bool, error) {
	kv, _, err := s.cli.KV().Get(s.full(key), nil)
	if err != nil {
		return nil, false, fmt.Errorf("consul get %s: %w", key, err)
	}
	if kv == nil {
		return nil, false, nil
	}
	return kv.Value, true, nil
}

func (s *Store) Put(key string, value []byte) error {
	_, err := s.cli.KV().Put(&consulapi.KVPair{Key: s.full(key), Value: value}, nil)
	if err != nil {
		return fmt.Errorf("consul put %s: %w", key, err)
	}
	return nil
}

func (s *Store) DeleteTree(path string) error {
	base := strings.TrimSuffix(s.full(path), "/")
	if _, err := s.cli.KV().DeleteTree(base+"/", nil); err != nil {
		return fmt.Errorf("consul delete tree %s: %w", base, err)
	}
	if _, err := s.cli.KV().Delete(base, nil); err != nil {
		return fmt.Errorf("consul delete %s: %w", base, err)
	}
	return nil
}

// Flush is a no-op: Consul writes are acknowledged by the raft leader.
func (s *Store) Flush() error { return nil }

// Close is a no-op; the HTTP client has no session to release.
func (s *Store) Close() error { return nil }

