package routing

import "testing"

func TestParseAllowlistYAML_Errors(t *testing.T) {
	t.Parallel()

	_, err := ParseAllowlistYAML([]byte{0xff})
	if err == nil {
		t.Fatal("expected yaml error")
	}

	_, err = ParseAllowlistYAML([]byte("version: 2\nentrypoints: {}"))
	if err == nil {
		t.Fatal("expected version error")
	}

	_, err = ParseAllowlistYAML([]byte("version: 1"))
	if err == nil {
		t.Fatal("expected entrypoints error")
	}

	_, err = ParseAllowlistYAML([]byte(`
version: 1
entrypoints:
  server:
    routes:
      - path: /meetings/api
        methods: [GET]
        route_class: websocket
`))
	if err == nil {
		t.Fatal("expected unknown route_class error")
	}
}

func TestParseAllowlistYAML_OK(t *testing.T) {
	t.Parallel()

	a, err := ParseAllowlistYAML([]byte(`
version: 1
entrypoints:
  server:
    routes:
      - path: /healthz
        methods: [GET]
        route_class: ops
      - path: /compliance/api/rule-packs
        methods: [GET, POST]
        route_class: internal_api
`))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(a.Entrypoints["server"].Routes) != 2 {
		t.Fatalf("routes=%d", len(a.Entrypoints["server"].Routes))
	}
}
