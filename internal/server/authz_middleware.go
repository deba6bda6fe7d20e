package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/harborlight-ed/harborlight/internal/routing"
	"github.com/harborlight-ed/harborlight/pkg/authz"
)

func loadAuthorizer() (*authz.Authorizer, error) {
	modelPath := os.Getenv("AUTHZ_MODEL_PATH")
	if modelPath == "" {
		p, err := defaultAuthzModelPath()
		if err != nil {
			return nil, err
		}
		modelPath = p
	}

	policyPath := os.Getenv("AUTHZ_POLICY_PATH")
	if policyPath == "" {
		p, err := defaultAuthzPolicyPath()
		if err != nil {
			return nil, err
		}
		policyPath = p
	}

	mode, err := authz.ModeFromEnv()
	if err != nil {
		return nil, err
	}

	return authz.NewAuthorizer(modelPath, policyPath, mode)
}

func defaultAuthzModelPath() (string, error) {
	path := "config/access/model.conf"
	for i := 0; i < 8; i++ {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: authz model not found")
}

func defaultAuthzPolicyPath() (string, error) {
	path := "config/access/policy.csv"
	for i := 0; i < 8; i++ {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: authz policy not found")
}

type authorizer interface {
	Authorize(subject string, domain string, object string, action string) (allowed bool, enforced bool, err error)
}

func withAuthz(classifier *routing.Classifier, a authorizer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		rc := routing.RouteClassUI
		if classifier != nil {
			rc = classifier.Classify(path)
		}

		if path == "/healthz" || path == "/readyz" {
			next.ServeHTTP(w, r)
			return
		}

		tenant, ok := currentTenant(r.Context())
		if !ok {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "tenant_missing", "tenant missing")
			return
		}

		roleSlug := authz.RoleAnonymous
		if role, ok := currentActorRole(r.Context()); ok {
			roleSlug = role
		}

		object, action, shouldCheck := authzRequirementForRoute(r.Method, path)
		if !shouldCheck {
			next.ServeHTTP(w, r)
			return
		}

		allowed, enforced, err := a.Authorize(authz.SubjectForRole(roleSlug), authz.DomainForTenant(tenant.ID), object, action)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "authz_error", "authz error")
			return
		}
		if enforced && !allowed {
			routing.WriteError(w, r, rc, http.StatusForbidden, "forbidden", "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func authzRequirementForRoute(method string, path string) (object string, action string, ok bool) {
	switch path {
	case "/compliance/api/rule-packs":
		if method == http.MethodGet {
			return authz.ObjectRulePacks, authz.ActionRead, true
		}
		if method == http.MethodPost {
			return authz.ObjectRulePacks, authz.ActionWrite, true
		}
		return "", "", false
	case "/compliance/api/rule-packs:activate", "/compliance/api/rule-packs:deactivate":
		if method == http.MethodPost {
			return authz.ObjectRulePacks, authz.ActionActivate, true
		}
		return "", "", false
	case "/compliance/api/rules:resolve":
		if method == http.MethodGet {
			return authz.ObjectRuleResolution, authz.ActionRead, true
		}
		return "", "", false
	case "/meetings/api/meetings":
		if method == http.MethodGet {
			return authz.ObjectMeetings, authz.ActionRead, true
		}
		return "", "", false
	case "/meetings/api/meetings:transition":
		if method == http.MethodPost {
			return authz.ObjectMeetings, authz.ActionClose, true
		}
		return "", "", false
	case "/meetings/api/meetings:close-preview":
		if method == http.MethodGet {
			return authz.ObjectClosePreview, authz.ActionRead, true
		}
		return "", "", false
	default:
		return "", "", false
	}
}
