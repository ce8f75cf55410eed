package auth

import (
	"net/http/httptest"
	"testing"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid", "Bearer abc123", "abc123", false},
		{"missing header", "", "", true},
		{"wrong scheme", "Basic abc123", "", true},
		{"no token", "Bearer", "", true},
		{"token with dots", "Bearer eyJh.eyJz.sig", "eyJh.eyJz.sig", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			got, err := bearerToken(r)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for header %q", tt.header)
				}
				return
			}
			if err != nil {
				t.Fatalf("bearerToken failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("bearerToken = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContextCompleteness(t *testing.T) {
	tests := []struct {
		name     string
		ctx      *Context
		complete bool
		hasUser  bool
	}{
		{"nil", nil, false, false},
		{"empty", &Context{}, false, false},
		{"user only", &Context{UserID: "user_1", SessionID: "sess_1"}, false, true},
		{"full", &Context{UserID: "user_1", OrgID: "org_1", SessionID: "sess_1"}, true, true},
		{"missing session", &Context{UserID: "user_1", OrgID: "org_1"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ctx.Complete(); got != tt.complete {
				t.Errorf("Complete() = %v, want %v", got, tt.complete)
			}
			if got := tt.ctx.HasUser(); got != tt.hasUser {
				t.Errorf("HasUser() = %v, want %v", got, tt.hasUser)
			}
		})
	}
}

func TestStaticProvider(t *testing.T) {
	t.Run("returns fixed context", func(t *testing.T) {
		p := &StaticProvider{Ctx: &Context{UserID: "user_1"}}
		ctx, err := p.Resolve(nil, nil)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if ctx.UserID != "user_1" {
			t.Errorf("UserID = %q", ctx.UserID)
		}
	})

	t.Run("returns fixed error", func(t *testing.T) {
		p := &StaticProvider{Err: ErrUnauthenticated}
		if _, err := p.Resolve(nil, nil); err != ErrUnauthenticated {
			t.Errorf("Expected ErrUnauthenticated, got %v", err)
		}
	})
}
