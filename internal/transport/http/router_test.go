package httptransport

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"custoda/internal/audit"
	"custoda/internal/captoken"
	"custoda/internal/credential"
	"custoda/internal/document"
	"custoda/internal/jwttoken"
	"custoda/internal/owner"
	"custoda/internal/permission"
	"custoda/internal/record"
	"custoda/internal/signer"
	"custoda/internal/syncer"
	"custoda/internal/vault"
	"custoda/pkg/testutil"
)

// newTestRouter assembles the full stack on in-memory backends, the same
// wiring the server binary does minus the external stores.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditStore := audit.NewInMemoryStore()
	auditor := audit.NewPublisher(auditStore, log)

	owners := owner.NewInMemoryStore()
	gate := owner.NewGate(owners)
	v := vault.NewInMemoryVault()
	creds := credential.NewInMemoryStore()

	permissions := permission.NewService(permission.NewInMemoryStore(), gate, auditor, log)
	records := record.NewService(record.NewInMemoryStore(), v, gate, auditor, log, nil, time.Second)

	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	documents := document.NewService(document.NewInMemoryStore(), document.NewInMemoryBlobStore(), key, gate, auditor, log)
	tokens := captoken.NewService(captoken.NewInMemoryStore(), documents, signer.NewHMAC("handler-test-key"), auditor, log, nil)
	syncService := syncer.NewService(owners, records, v, creds, auditor, log, nil, time.Second)

	registry := owner.NewRegistry(owners, v, creds, permissions, records, documents, tokens, syncService, auditor, log, nil)
	jwt := jwttoken.NewJWTService("handler-test-jwt-key", "custoda", "custoda-api")

	h := NewHandler(log, jwt, registry, records, permissions, documents, tokens, syncService, auditStore)
	return NewRouter(h)
}

type ownerEnvelope struct {
	Owner       owner.DataOwner `json:"owner"`
	AccessToken string          `json:"accessToken"`
}

// registerOwner creates an owner through the API and returns its ID and a
// session token.
func registerOwner(t *testing.T, router http.Handler, name string) (string, string) {
	t.Helper()
	req := testutil.NewJSONRequest(t, http.MethodPost, "/owners", map[string]string{
		"name":    name,
		"contact": name + "@example.org",
	})
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	resp := testutil.UnmarshalResponse[ownerEnvelope](t, rr)
	require.NotEmpty(t, resp.Owner.ID)
	require.NotEmpty(t, resp.AccessToken)
	return resp.Owner.ID, resp.AccessToken
}

func authed(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// ghostToken builds a structurally valid bearer payload for a token that was
// never issued.
func ghostToken(t *testing.T) string {
	t.Helper()
	wire, err := json.Marshal(map[string]any{
		"version":       "v1",
		"tokenId":       "never-issued",
		"documentId":    "no-such-document",
		"ownerId":       "no-such-owner",
		"accessLevel":   "view",
		"expiresAt":     time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		"allowedScopes": []string{"intake"},
		"signature":     "bogus",
		"issuedAt":      time.Now().UTC().Format(time.RFC3339),
	})
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(wire)
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)
	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	testutil.AssertStatus(t, rr, http.StatusOK)
}

func TestCreateOwner(t *testing.T) {
	router := newTestRouter(t)

	t.Run("registration returns the owner and a session token", func(t *testing.T) {
		ownerID, token := registerOwner(t, router, "Ada")

		rr := testutil.DoRequest(router, authed(testutil.NewRequest(t, http.MethodGet, "/owners/"+ownerID), token))
		testutil.AssertStatus(t, rr, http.StatusOK)

		fetched := testutil.UnmarshalResponse[owner.DataOwner](t, rr)
		require.Equal(t, ownerID, fetched.ID)
		require.True(t, fetched.Active)
	})

	t.Run("missing name is rejected", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/owners", map[string]string{"contact": "x@example.org"})
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
		testutil.AssertErrorCode(t, rr, "invalid_input")
	})

	t.Run("malformed birth date is rejected", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/owners", map[string]string{
			"name": "Bo", "birthDate": "01/02/1990",
		})
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestAuthBoundary(t *testing.T) {
	router := newTestRouter(t)
	ownerID, token := registerOwner(t, router, "Ada")

	t.Run("no token is unauthorized", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/owners/"+ownerID))
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("garbage token is unauthorized", func(t *testing.T) {
		rr := testutil.DoRequest(router, authed(testutil.NewRequest(t, http.MethodGet, "/owners/"+ownerID), "not-a-jwt"))
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("one owner cannot read another", func(t *testing.T) {
		otherID, _ := registerOwner(t, router, "Eve")
		rr := testutil.DoRequest(router, authed(testutil.NewRequest(t, http.MethodGet, "/owners/"+otherID), token))
		testutil.AssertStatus(t, rr, http.StatusForbidden)
		testutil.AssertErrorCode(t, rr, "unauthorized")
	})
}

func TestRecordRoundTrip(t *testing.T) {
	router := newTestRouter(t)
	ownerID, token := registerOwner(t, router, "Ada")
	base := "/owners/" + ownerID

	req := testutil.NewJSONRequest(t, http.MethodPost, base+"/records", map[string]any{
		"dataType": "identity",
		"payload":  map[string]any{"name": "Ada", "documentNumber": "X-42"},
	})
	rr := testutil.DoRequest(router, authed(req, token))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	created := testutil.UnmarshalResponse[record.UnifiedRecord](t, rr)
	require.Equal(t, 1, created.Version)
	require.NotEmpty(t, created.IntegrityHash)

	rr = testutil.DoRequest(router, authed(testutil.NewRequest(t, http.MethodGet, base+"/records/identity"), token))
	testutil.AssertStatus(t, rr, http.StatusOK)

	list := testutil.UnmarshalResponse[struct {
		Records []record.View `json:"records"`
	}](t, rr)
	require.Len(t, list.Records, 1)
	require.Equal(t, created.ID, list.Records[0].Record.ID)
	require.False(t, list.Records[0].Corrupted)

	rr = testutil.DoRequest(router, authed(testutil.NewRequest(t, http.MethodDelete, base+"/records/"+created.ID), token))
	testutil.AssertStatus(t, rr, http.StatusNoContent)

	rr = testutil.DoRequest(router, authed(testutil.NewRequest(t, http.MethodGet, base+"/records/identity"), token))
	list = testutil.UnmarshalResponse[struct {
		Records []record.View `json:"records"`
	}](t, rr)
	require.Empty(t, list.Records)
}

func TestRecordValidation(t *testing.T) {
	router := newTestRouter(t)
	ownerID, token := registerOwner(t, router, "Ada")
	base := "/owners/" + ownerID

	t.Run("unknown data type", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, base+"/records", map[string]any{
			"dataType": "diary", "payload": map[string]any{"x": 1},
		})
		rr := testutil.DoRequest(router, authed(req, token))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("missing payload", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, base+"/records", map[string]any{
			"dataType": "identity",
		})
		rr := testutil.DoRequest(router, authed(req, token))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
		testutil.AssertErrorCode(t, rr, "invalid_input")
	})

	t.Run("unknown privacy level", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, base+"/records", map[string]any{
			"dataType": "identity", "payload": map[string]any{"x": 1}, "privacyLevel": "sneaky",
		})
		rr := testutil.DoRequest(router, authed(req, token))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
		testutil.AssertErrorCode(t, rr, "invalid_input")

		rr = testutil.DoRequest(router, authed(testutil.NewRequest(t, http.MethodGet, base+"/records/identity?privacyLevel=sneaky"), token))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("bad paging query", func(t *testing.T) {
		rr := testutil.DoRequest(router, authed(testutil.NewRequest(t, http.MethodGet, base+"/records/identity?limit=-1"), token))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestTokenFlow(t *testing.T) {
	router := newTestRouter(t)
	ownerID, token := registerOwner(t, router, "Ada")
	base := "/owners/" + ownerID

	// Upload a document to hang the capability token off.
	req := testutil.NewJSONRequest(t, http.MethodPost, base+"/documents", map[string]any{
		"fileName":    "card.pdf",
		"contentType": "application/pdf",
		"data":        "aGVsbG8gd29ybGQ=",
	})
	rr := testutil.DoRequest(router, authed(req, token))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	doc := testutil.UnmarshalResponse[document.Document](t, rr)

	req = testutil.NewJSONRequest(t, http.MethodPost, "/documents/"+doc.ID+"/tokens", map[string]any{
		"accessLevel":    "view",
		"ttlSeconds":     3600,
		"maxAccessCount": 1,
		"allowedScopes":  []string{"intake"},
	})
	rr = testutil.DoRequest(router, authed(req, token))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	issued := testutil.UnmarshalResponse[captoken.CapabilityToken](t, rr)
	require.NotEmpty(t, issued.EncodedPayload)

	t.Run("a bearer validates without any session", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/tokens/validate", map[string]string{
			"token": issued.EncodedPayload,
			"scope": "intake",
		})
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusOK)
	})

	t.Run("every rejection class gets the identical body", func(t *testing.T) {
		// A spent token, a malformed token, and a well-formed token that was
		// never issued must be indistinguishable from outside.
		spent := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/tokens/validate", map[string]string{
			"token": issued.EncodedPayload,
			"scope": "intake",
		}))
		testutil.AssertStatus(t, spent, http.StatusForbidden)

		malformed := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/tokens/validate", map[string]string{
			"token": "ZZZZ-not-a-token",
		}))
		testutil.AssertStatus(t, malformed, http.StatusForbidden)

		unknown := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/tokens/validate", map[string]string{
			"token": ghostToken(t),
			"scope": "intake",
		}))
		testutil.AssertStatus(t, unknown, http.StatusForbidden)

		spentBody := testutil.ReadBody(t, spent)
		require.Equal(t, spentBody, testutil.ReadBody(t, malformed))
		require.Equal(t, spentBody, testutil.ReadBody(t, unknown))
		require.NotContains(t, string(spentBody), "malformed")
		require.NotContains(t, string(spentBody), "not_found")
		require.NotContains(t, string(spentBody), "signature")
	})

	t.Run("only the issuing owner may revoke", func(t *testing.T) {
		_, otherToken := registerOwner(t, router, "Eve")
		rr := testutil.DoRequest(router, authed(testutil.NewRequest(t, http.MethodPost, "/tokens/"+issued.ID+"/revoke"), otherToken))
		testutil.AssertStatus(t, rr, http.StatusForbidden)

		rr = testutil.DoRequest(router, authed(testutil.NewRequest(t, http.MethodPost, "/tokens/"+issued.ID+"/revoke"), token))
		testutil.AssertStatus(t, rr, http.StatusNoContent)
	})
}

func TestPermissionEndpoints(t *testing.T) {
	router := newTestRouter(t)
	ownerID, token := registerOwner(t, router, "Ada")
	base := "/owners/" + ownerID

	req := testutil.NewJSONRequest(t, http.MethodPost, base+"/permissions", map[string]any{
		"grantee":      "clinic",
		"dataTypes":    []string{"health"},
		"accessRights": []string{"read"},
		"purpose":      "treatment",
	})
	rr := testutil.DoRequest(router, authed(req, token))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	granted := testutil.UnmarshalResponse[permission.DataPermission](t, rr)

	req = testutil.NewJSONRequest(t, http.MethodPost, base+"/access-check", map[string]any{
		"grantee": "clinic", "dataType": "health", "accessRight": "read",
	})
	rr = testutil.DoRequest(router, authed(req, token))
	testutil.AssertStatus(t, rr, http.StatusOK)
	check := testutil.UnmarshalResponse[map[string]bool](t, rr)
	require.True(t, (*check)["allowed"])

	rr = testutil.DoRequest(router, authed(testutil.NewRequest(t, http.MethodPost, "/permissions/"+granted.ID+"/revoke"), token))
	testutil.AssertStatus(t, rr, http.StatusNoContent)

	req = testutil.NewJSONRequest(t, http.MethodPost, base+"/access-check", map[string]any{
		"grantee": "clinic", "dataType": "health", "accessRight": "read",
	})
	rr = testutil.DoRequest(router, authed(req, token))
	check = testutil.UnmarshalResponse[map[string]bool](t, rr)
	require.False(t, (*check)["allowed"])
}

func TestSyncAndIntegrityEndpoints(t *testing.T) {
	router := newTestRouter(t)
	ownerID, token := registerOwner(t, router, "Ada")
	base := "/owners/" + ownerID

	req := testutil.NewJSONRequest(t, http.MethodPost, base+"/records", map[string]any{
		"dataType": "shelter", "payload": map[string]any{"bed": "A"},
	})
	rr := testutil.DoRequest(router, authed(req, token))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	rr = testutil.DoRequest(router, authed(testutil.NewRequest(t, http.MethodPost, base+"/sync"), token))
	testutil.AssertStatus(t, rr, http.StatusOK)
	sync := testutil.UnmarshalResponse[syncer.SyncResult](t, rr)
	require.True(t, sync.Vault.Success)

	rr = testutil.DoRequest(router, authed(testutil.NewRequest(t, http.MethodGet, base+"/integrity"), token))
	testutil.AssertStatus(t, rr, http.StatusOK)
	report := testutil.UnmarshalResponse[syncer.IntegrityReport](t, rr)
	require.Equal(t, report.TotalRecords, report.ValidRecords)
	require.Empty(t, report.HashMismatches)
}
