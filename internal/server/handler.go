package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborlight-ed/harborlight/internal/routing"
	meetingports "github.com/harborlight-ed/harborlight/modules/meetings/domain/ports"
	meetingpersist "github.com/harborlight-ed/harborlight/modules/meetings/infrastructure/persistence"
	meetingcontrollers "github.com/harborlight-ed/harborlight/modules/meetings/presentation/controllers"
	meetingsvc "github.com/harborlight-ed/harborlight/modules/meetings/services"
	packports "github.com/harborlight-ed/harborlight/modules/rulepacks/domain/ports"
	packpersist "github.com/harborlight-ed/harborlight/modules/rulepacks/infrastructure/persistence"
	packcontrollers "github.com/harborlight-ed/harborlight/modules/rulepacks/presentation/controllers"
	packsvc "github.com/harborlight-ed/harborlight/modules/rulepacks/services"
)

// HandlerOptions lets callers inject dependencies. Zero-value fields fall
// back to the environment-driven defaults NewHandler uses.
type HandlerOptions struct {
	Tenancy    TenancyResolver
	RulePacks  packports.RulePackStore
	Meetings   meetingports.MeetingStore
	Authorizer authorizer
	NowUTC     func() time.Time
}

// NewHandler builds the production handler: database-backed stores when
// DATABASE_URL is set, in-memory stores otherwise.
func NewHandler() (http.Handler, error) {
	return NewHandlerWithOptions(HandlerOptions{})
}

func MustNewHandler() http.Handler {
	h, err := NewHandler()
	if err != nil {
		panic(err)
	}
	return h
}

func NewHandlerWithOptions(opts HandlerOptions) (http.Handler, error) {
	nowUTC := opts.NowUTC
	if nowUTC == nil {
		nowUTC = func() time.Time { return time.Now().UTC() }
	}

	var pool *pgxpool.Pool
	needsDB := opts.Tenancy == nil || opts.RulePacks == nil || opts.Meetings == nil
	if needsDB && os.Getenv("DATABASE_URL") != "" {
		p, err := pgxpool.New(context.Background(), dbDSNFromEnv())
		if err != nil {
			return nil, err
		}
		pool = p
	}

	tenancy := opts.Tenancy
	if tenancy == nil {
		if pool != nil {
			tenancy = newTenancyDBResolver(pool)
		} else {
			tenants, err := loadTenants()
			if err != nil {
				return nil, err
			}
			tenancy = newStaticTenancyResolver(tenants)
		}
	}

	packStore := opts.RulePacks
	if packStore == nil {
		if pool != nil {
			packStore = packpersist.NewRulePackPGStore(pool)
		} else {
			packStore = newMemoryRulePackStore()
		}
	}

	meetingStore := opts.Meetings
	if meetingStore == nil {
		if pool != nil {
			meetingStore = meetingpersist.NewMeetingPGStore(pool)
		} else {
			meetingStore = newMemoryMeetingStore()
		}
	}

	az := opts.Authorizer
	if az == nil {
		a, err := loadAuthorizer()
		if err != nil {
			return nil, err
		}
		az = a
	}

	allowlist, err := loadAllowlist()
	if err != nil {
		return nil, err
	}
	classifier, err := routing.NewClassifier(allowlist, "server")
	if err != nil {
		return nil, err
	}

	resolver := packsvc.NewResolver(packStore)
	facade := packsvc.NewPacksFacade(packStore)
	workflow := meetingsvc.NewWorkflow(meetingStore, resolver).WithClock(nowUTC)

	tenantID := func(ctx context.Context) (string, bool) {
		t, ok := currentTenant(ctx)
		return t.ID, ok
	}

	packsCtl := packcontrollers.RulePacksController{TenantID: tenantID, NowUTC: nowUTC, Facade: facade}
	meetingsCtl := meetingcontrollers.MeetingsController{TenantID: tenantID, ActorID: currentActorID, NowUTC: nowUTC, Workflow: workflow}
	resolveAPI := rulesResolveAPI{resolver: resolver, nowUTC: nowUTC}

	router := routing.NewRouter(classifier)

	router.Handle(routing.RouteClassOps, http.MethodGet, "/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	router.Handle(routing.RouteClassOps, http.MethodGet, "/readyz", readyzHandler(pool))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/compliance/api/rule-packs", http.HandlerFunc(packsCtl.HandleRulePacksAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/compliance/api/rule-packs", http.HandlerFunc(packsCtl.HandleRulePacksAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/compliance/api/rule-packs:activate", http.HandlerFunc(packsCtl.HandleRulePackActivateAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/compliance/api/rule-packs:deactivate", http.HandlerFunc(packsCtl.HandleRulePackDeactivateAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/compliance/api/rules:resolve", http.HandlerFunc(resolveAPI.handle))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/meetings/api/meetings", http.HandlerFunc(meetingsCtl.HandleMeetingsAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/meetings/api/meetings:transition", http.HandlerFunc(meetingsCtl.HandleMeetingTransitionAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/meetings/api/meetings:close-preview", http.HandlerFunc(meetingsCtl.HandleClosePreviewAPI))

	var h http.Handler = router
	h = withAuthz(classifier, az, h)
	h = withTenancy(classifier, tenancy, h)
	return h, nil
}

func readyzHandler(pool *pgxpool.Pool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pool.Ping(ctx); err != nil {
				routing.WriteError(w, r, routing.RouteClassOps, http.StatusServiceUnavailable, "db_unavailable", "database unavailable")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// withTenancy resolves the tenant from the request host and stashes it plus
// the gateway-asserted actor headers on the context. Ops probes are exempt.
func withTenancy(classifier *routing.Classifier, resolver TenancyResolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
			next.ServeHTTP(w, r)
			return
		}

		rc := routing.RouteClassUI
		if classifier != nil {
			rc = classifier.Classify(r.URL.Path)
		}

		host := effectiveHost(r)
		tenant, ok, err := resolver.ResolveTenant(r.Context(), host)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "tenancy_error", "tenancy lookup failed")
			return
		}
		if !ok {
			routing.WriteError(w, r, rc, http.StatusNotFound, "tenant_not_found", "unknown tenant host")
			return
		}

		ctx := withTenant(r.Context(), tenant)
		if role := strings.TrimSpace(r.Header.Get("X-Actor-Role")); role != "" {
			ctx = withActorRole(ctx, role)
		}
		if actor := strings.TrimSpace(r.Header.Get("X-Actor-Id")); actor != "" {
			ctx = withActorID(ctx, actor)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loadAllowlist() (routing.Allowlist, error) {
	path := os.Getenv("ALLOWLIST_PATH")
	if path == "" {
		p, err := defaultAllowlistPath()
		if err != nil {
			return routing.Allowlist{}, err
		}
		path = p
	}
	return routing.LoadAllowlist(path)
}

func defaultAllowlistPath() (string, error) {
	path := filepath.Join("config", "routing", "allowlist.yaml")
	for i := 0; i < 8; i++ {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: routing allowlist not found")
}
