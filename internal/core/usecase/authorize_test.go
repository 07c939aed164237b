package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/notarization-api/internal/core/domain"
)

func TestAuthorize(t *testing.T) {
	cases := []struct {
		name     string
		header   string
		verifier verifierFake
		perm     domain.Permission
		wantErr  error
	}{
		{name: "missing header", header: "", verifier: verifierFake{identity: requester}, perm: domain.PermGetHistory, wantErr: domain.ErrUnauthorized},
		{name: "not bearer", header: "Basic abc", verifier: verifierFake{identity: requester}, perm: domain.PermGetHistory, wantErr: domain.ErrUnauthorized},
		{name: "invalid token", header: "Bearer bad", verifier: verifierFake{err: errBoom}, perm: domain.PermGetHistory, wantErr: domain.ErrUnauthorized},
		{name: "unknown role", header: "Bearer t", verifier: verifierFake{identity: domain.Identity{UserID: "x", Role: "guest"}}, perm: domain.PermGetHistory, wantErr: domain.ErrForbidden},
		{name: "missing permission", header: "Bearer t", verifier: verifierFake{identity: requester}, perm: domain.PermForwardDocumentStatus, wantErr: domain.ErrForbidden},
		{name: "allowed", header: "bearer t", verifier: verifierFake{identity: notary}, perm: domain.PermForwardDocumentStatus},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc := NewAuthorizeUseCase(tc.verifier)
			identity, err := uc.Authorize(context.Background(), tc.header, tc.perm)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authorize() error = %v", err)
			}
			if identity.UserID != tc.verifier.identity.UserID {
				t.Fatalf("unexpected identity %+v", identity)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"my contract.pdf":  "my_contract.pdf",
		"../../etc/passwd": "passwd",
		"скан.png":         "____.png",
		"":                 "file.bin",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
