package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/karatlane/karat/pkg/auth"
	"github.com/karatlane/karat/pkg/observability"
)

// policyFile is the on-disk YAML shape of the access policy.
type policyFile struct {
	Routes map[string][]string `yaml:"routes"`
}

// AccessPolicy maps route prefixes to the roles allowed on them. Routes
// without an entry admit any authenticated principal; the guard handles
// authentication itself. The policy reloads when the file changes, so
// role assignments can be tightened without a restart.
type AccessPolicy struct {
	path   string
	logger *observability.Logger

	mu     sync.RWMutex
	routes map[string][]auth.Role
}

// LoadAccessPolicy reads the policy file. A missing path yields an empty
// policy that admits all authenticated principals everywhere.
func LoadAccessPolicy(path string, logger *observability.Logger) (*AccessPolicy, error) {
	p := &AccessPolicy{
		path:   path,
		logger: logger,
		routes: map[string][]auth.Role{},
	}

	if path == "" {
		return p, nil
	}

	if err := p.reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// reload reads and swaps in the current file contents.
func (p *AccessPolicy) reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("failed to read policy file %s: %w", p.path, err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse policy file %s: %w", p.path, err)
	}

	routes := make(map[string][]auth.Role, len(file.Routes))
	for route, roleNames := range file.Routes {
		roles := make([]auth.Role, 0, len(roleNames))
		for _, name := range roleNames {
			roles = append(roles, auth.Role(strings.TrimSpace(name)))
		}
		routes[route] = roles
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// A rewrite in progress can surface as an empty file: the editor
	// truncates before it writes. Swapping that in would silently drop
	// every role allowlist, so keep the last good policy and let the
	// event for the completed write bring the new routes in.
	if len(routes) == 0 && len(p.routes) > 0 {
		return fmt.Errorf("policy file %s parsed to zero routes, keeping %d existing", p.path, len(p.routes))
	}

	p.routes = routes
	return nil
}

// RolesFor returns the allowed roles for a request path, using the
// longest matching route prefix. An empty slice means no restriction.
func (p *AccessPolicy) RolesFor(path string) []auth.Role {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var bestPrefix string
	var bestRoles []auth.Role
	for prefix, roles := range p.routes {
		if strings.HasPrefix(path, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix = prefix
			bestRoles = roles
		}
	}

	out := make([]auth.Role, len(bestRoles))
	copy(out, bestRoles)
	return out
}

// Routes returns the configured route prefixes, sorted.
func (p *AccessPolicy) Routes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, len(p.routes))
	for prefix := range p.routes {
		out = append(out, prefix)
	}
	sort.Strings(out)
	return out
}

// Watch reloads the policy whenever the file changes, until the context
// is cancelled. Reload failures keep the last good policy.
func (p *AccessPolicy) Watch(ctx context.Context) error {
	if p.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}

	// Watch the directory: editors replace the file on save, which drops
	// a watch held on the file itself.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch policy directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(p.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := p.reload(); err != nil {
					if p.logger != nil {
						p.logger.WithError(err).Warn("access policy reload failed, keeping previous policy")
					}
					continue
				}
				if p.logger != nil {
					p.logger.WithField("path", p.path).Info("access policy reloaded")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if p.logger != nil {
					p.logger.WithError(err).Warn("policy watcher error")
				}
			}
		}
	}()

	return nil
}
