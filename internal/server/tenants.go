package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"
)

type Tenant struct {
	ID     string `yaml:"id"`
	Domain string `yaml:"domain"`
	Name   string `yaml:"name"`
}

type TenancyResolver interface {
	ResolveTenant(ctx context.Context, hostname string) (Tenant, bool, error)
}

type tenantsFile struct {
	Version int      `yaml:"version"`
	Tenants []Tenant `yaml:"tenants"`
}

func loadTenants() (map[string]Tenant, error) {
	path := os.Getenv("TENANTS_PATH")
	if path == "" {
		p, err := defaultTenantsPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseTenantsYAML(b)
}

func parseTenantsYAML(b []byte) (map[string]Tenant, error) {
	var tf tenantsFile
	if err := yaml.Unmarshal(b, &tf); err != nil {
		return nil, err
	}
	if tf.Version != 1 {
		return nil, errors.New("tenants: unsupported version")
	}
	if len(tf.Tenants) == 0 {
		return nil, errors.New("tenants: empty")
	}

	m := make(map[string]Tenant, len(tf.Tenants))
	for _, t := range tf.Tenants {
		if t.Domain == "" || t.ID == "" {
			return nil, errors.New("tenants: invalid tenant")
		}
		m[strings.ToLower(t.Domain)] = t
	}
	return m, nil
}

func defaultTenantsPath() (string, error) {
	path := "config/tenants.yaml"
	for i := 0; i < 8; i++ {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: tenants config not found")
}

type staticTenancyResolver struct {
	tenants map[string]Tenant
}

func newStaticTenancyResolver(tenants map[string]Tenant) TenancyResolver {
	m := make(map[string]Tenant, len(tenants))
	for k, v := range tenants {
		m[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &staticTenancyResolver{tenants: m}
}

func (r *staticTenancyResolver) ResolveTenant(_ context.Context, hostname string) (Tenant, bool, error) {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return Tenant{}, false, nil
	}
	t, ok := r.tenants[hostname]
	return t, ok, nil
}

type tenancyDBResolver struct {
	q queryRower
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func newTenancyDBResolver(pool *pgxpool.Pool) TenancyResolver {
	return &tenancyDBResolver{q: pool}
}

func (r *tenancyDBResolver) ResolveTenant(ctx context.Context, hostname string) (Tenant, bool, error) {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return Tenant{}, false, nil
	}

	var tenantID string
	var tenantName string

	err := r.q.QueryRow(ctx, `
SELECT t.tenant_id::text, t.name
FROM core.tenant_domains d
JOIN core.tenants t ON t.tenant_id = d.tenant_id
WHERE d.hostname = $1
  AND t.is_active = true
LIMIT 1
`, hostname).Scan(&tenantID, &tenantName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, false, nil
		}
		return Tenant{}, false, err
	}
	return Tenant{ID: tenantID, Domain: hostname, Name: tenantName}, true, nil
}
