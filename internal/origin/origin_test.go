package origin

import "testing"

func TestNormalizeHeader(t *testing.T) {
	t.Run("lowercases scheme and host", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("HTTPS://Meet.Example.COM:8443")
		if !ok {
			t.Fatalf("expected ok=true")
		}
		if normalized != "https://meet.example.com:8443" {
			t.Fatalf("normalized=%q, want %q", normalized, "https://meet.example.com:8443")
		}
		if host != "meet.example.com:8443" {
			t.Fatalf("host=%q, want %q", host, "meet.example.com:8443")
		}
	})

	t.Run("strips default ports", func(t *testing.T) {
		cases := []struct {
			in   string
			want string
		}{
			{"https://meet.example.com:443", "https://meet.example.com"},
			{"http://meet.example.com:80", "http://meet.example.com"},
			{"http://meet.example.com:443", "http://meet.example.com:443"},
		}
		for _, c := range cases {
			normalized, _, ok := NormalizeHeader(c.in)
			if !ok {
				t.Fatalf("expected ok=true for %q", c.in)
			}
			if normalized != c.want {
				t.Fatalf("normalized(%q)=%q, want %q", c.in, normalized, c.want)
			}
		}
	})

	t.Run("brackets ipv6 literals", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("http://[::1]:5173")
		if !ok {
			t.Fatalf("expected ok=true")
		}
		if normalized != "http://[::1]:5173" || host != "[::1]:5173" {
			t.Fatalf("normalized=%q host=%q", normalized, host)
		}
	})

	t.Run("allows trailing slash", func(t *testing.T) {
		normalized, _, ok := NormalizeHeader("http://localhost:5173/")
		if !ok {
			t.Fatalf("expected ok=true")
		}
		if normalized != "http://localhost:5173" {
			t.Fatalf("normalized=%q, want %q", normalized, "http://localhost:5173")
		}
	})

	t.Run("allows null origin", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("null")
		if !ok {
			t.Fatalf("expected ok=true")
		}
		if normalized != "null" || host != "" {
			t.Fatalf("normalized=%q host=%q, want normalized=%q host=%q", normalized, host, "null", "")
		}
	})

	t.Run("rejects scheme other than http/https", func(t *testing.T) {
		if _, _, ok := NormalizeHeader("ftp://example.com"); ok {
			t.Fatalf("expected ok=false")
		}
	})

	t.Run("rejects path, query, credentials, fragment", func(t *testing.T) {
		cases := []string{
			"https://example.com/path",
			"https://example.com/?q=1",
			"https://user@example.com",
			"https://example.com/#frag",
		}
		for _, c := range cases {
			if _, _, ok := NormalizeHeader(c); ok {
				t.Fatalf("expected ok=false for %q", c)
			}
		}
	})

	t.Run("rejects invalid ports", func(t *testing.T) {
		cases := []string{
			"https://example.com:0",
			"https://example.com:70000",
			"https://example.com:abc",
		}
		for _, c := range cases {
			if _, _, ok := NormalizeHeader(c); ok {
				t.Fatalf("expected ok=false for %q", c)
			}
		}
	})
}

func TestIsAllowed(t *testing.T) {
	t.Run("default is same host:port only", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("https://app.example.com")
		if !ok {
			t.Fatalf("NormalizeHeader ok=false")
		}
		if !IsAllowed(normalized, host, "app.example.com", nil) {
			t.Fatalf("expected same-host to be allowed")
		}
		if IsAllowed(normalized, host, "other.example.com", nil) {
			t.Fatalf("expected different host to be rejected")
		}
	})

	t.Run("default treats default ports as equivalent", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("https://app.example.com")
		if !ok {
			t.Fatalf("NormalizeHeader ok=false")
		}
		if !IsAllowed(normalized, host, "app.example.com:443", nil) {
			t.Fatalf("expected explicit default port in Host to be allowed")
		}
	})

	t.Run("allows star", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("https://app.example.com")
		if !ok {
			t.Fatalf("NormalizeHeader ok=false")
		}
		if !IsAllowed(normalized, host, "whatever:1234", []string{"*"}) {
			t.Fatalf("expected * to allow any origin")
		}
	})

	t.Run("allows explicit origin", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("https://app.example.com")
		if !ok {
			t.Fatalf("NormalizeHeader ok=false")
		}
		if !IsAllowed(normalized, host, "relay.example.com", []string{"https://app.example.com"}) {
			t.Fatalf("expected explicit origin to be allowed")
		}
		if IsAllowed(normalized, host, "relay.example.com", []string{"https://other.example.com"}) {
			t.Fatalf("expected non-matching origin to be rejected")
		}
	})

	t.Run("explicit default port matches normalized allow list entry", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("https://app.example.com:443")
		if !ok {
			t.Fatalf("NormalizeHeader ok=false")
		}
		if !IsAllowed(normalized, host, "relay.example.com", []string{"https://app.example.com"}) {
			t.Fatalf("expected equivalent origin (explicit default port) to be allowed")
		}
	})

	t.Run("null origin cannot match same-host default", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("null")
		if !ok {
			t.Fatalf("NormalizeHeader ok=false")
		}
		if IsAllowed(normalized, host, "relay.example.com", nil) {
			t.Fatalf("expected null origin to be rejected by the default policy")
		}
		if !IsAllowed(normalized, host, "relay.example.com", []string{"null"}) {
			t.Fatalf("expected null origin to be allowed when configured")
		}
	})
}
