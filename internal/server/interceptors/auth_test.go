package interceptors

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	authdomain "school-backoffice/backend/internal/auth/domain"
	"school-backoffice/backend/internal/security"
)

// mockAuthenticator validates with a real token provider and rejects revoked jtis.
type mockAuthenticator struct {
	tokens  *security.TokenProvider
	revoked map[string]bool
	err     error
}

func (m *mockAuthenticator) Authenticate(_ context.Context, token string) (*security.AccessClaims, error) {
	if m.err != nil {
		return nil, m.err
	}
	claims, err := m.tokens.ValidateAccess(token)
	if err != nil {
		return nil, authdomain.New(authdomain.KindInvalidToken, err)
	}
	if m.revoked[claims.ID] {
		return nil, authdomain.ErrSessionRevoked
	}
	return claims, nil
}

func newMockAuthenticator(t *testing.T) *mockAuthenticator {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	return &mockAuthenticator{tokens: tokens, revoked: map[string]bool{}}
}

func bearerCtx(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
}

var protectedInfo = &grpc.UnaryServerInfo{FullMethod: "/test.Service/ProtectedMethod"}

func TestAuthUnary_PublicMethod(t *testing.T) {
	interceptor := AuthUnary(newMockAuthenticator(t), map[string]bool{"/test.Service/PublicMethod": true})
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "success", nil
	}
	resp, err := interceptor(context.Background(), "request", &grpc.UnaryServerInfo{
		FullMethod: "/test.Service/PublicMethod",
	}, handler)
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if resp != "success" {
		t.Errorf("response = %v, want %q", resp, "success")
	}
}

func TestAuthUnary_ProtectedMethod_NoToken(t *testing.T) {
	interceptor := AuthUnary(newMockAuthenticator(t), nil)
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler must not run")
		return nil, nil
	}
	_, err := interceptor(context.Background(), "request", protectedInfo, handler)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}
}

func TestAuthUnary_ProtectedMethod_ValidToken(t *testing.T) {
	auth := newMockAuthenticator(t)
	access, err := auth.tokens.IssueAccess("session-1", "acct-1", "school-1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	interceptor := AuthUnary(auth, nil)
	var gotAccount, gotJTI string
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		gotAccount, _ = GetAccountID(ctx)
		gotJTI, _ = GetJTI(ctx)
		return "ok", nil
	}
	if _, err := interceptor(bearerCtx(access.Token), "request", protectedInfo, handler); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if gotAccount != "acct-1" || gotJTI != access.JTI {
		t.Errorf("identity = %q/%q, want acct-1/%q", gotAccount, gotJTI, access.JTI)
	}
}

func TestAuthUnary_ProtectedMethod_RevokedSession(t *testing.T) {
	auth := newMockAuthenticator(t)
	access, err := auth.tokens.IssueAccess("session-1", "acct-1", "school-1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	auth.revoked[access.JTI] = true
	interceptor := AuthUnary(auth, nil)
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler must not run")
		return nil, nil
	}
	_, err = interceptor(bearerCtx(access.Token), "request", protectedInfo, handler)
	st, _ := status.FromError(err)
	if st.Code() != codes.Unauthenticated || st.Message() != string(authdomain.KindSessionRevoked) {
		t.Errorf("status = %v %q", st.Code(), st.Message())
	}
}

func TestAuthUnary_ProtectedMethod_InvalidToken(t *testing.T) {
	interceptor := AuthUnary(newMockAuthenticator(t), nil)
	handler := func(ctx context.Context, req interface{}) (interface{}, error) { return nil, nil }
	_, err := interceptor(bearerCtx("not-a-jwt"), "request", protectedInfo, handler)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}
}

func TestAuthUnary_StoreDown(t *testing.T) {
	auth := newMockAuthenticator(t)
	auth.err = authdomain.Unavailable(context.DeadlineExceeded)
	interceptor := AuthUnary(auth, nil)
	handler := func(ctx context.Context, req interface{}) (interface{}, error) { return nil, nil }
	_, err := interceptor(bearerCtx("anything"), "request", protectedInfo, handler)
	if status.Code(err) != codes.Unavailable {
		t.Errorf("code = %v, want Unavailable", status.Code(err))
	}
}

func TestParseBearer(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"Bearer abc", "abc"},
		{"bearer   abc  ", "abc"},
		{"BEARER abc", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tc := range testCases {
		if got := ParseBearer(tc.in); got != tc.want {
			t.Errorf("ParseBearer(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
