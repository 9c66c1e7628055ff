package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"keyrelay/internal/auth"
	"keyrelay/internal/domain"
	"keyrelay/internal/dto"
	"keyrelay/internal/service"
	"keyrelay/internal/store"
	transport "keyrelay/internal/transport/http"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testSecret = "router-test-secret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(domain.All()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	svc := service.New(store.New(db), 2)
	router := transport.NewRouter(svc, auth.NewVerifier(testSecret), 0)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func bearerToken(t *testing.T, principal string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": principal,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, method, url, token string, body, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestRouterRequiresToken(t *testing.T) {
	srv := newTestServer(t)

	status := doJSON(t, http.MethodGet, srv.URL+"/api/signal/devices", "", nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz should not require auth, got %d", resp.StatusCode)
	}
}

func TestRegisterBundleAndFanOut(t *testing.T) {
	srv := newTestServer(t)
	alice := bearerToken(t, "alice")
	bob := bearerToken(t, "bob")

	registerReq := dto.RegisterDeviceRequest{
		RegistrationID:    123,
		IdentityKeyPublic: "alice-identity",
		SignedPreKey:      dto.SignedPreKey{KeyID: 1, PublicKey: "alice-spk", Signature: "alice-sig"},
		PreKeys:           []dto.OneTimePreKey{{KeyID: 1, PublicKey: "alice-otk"}},
	}
	var registered dto.RegisterDeviceResponse
	status := doJSON(t, http.MethodPost, srv.URL+"/api/signal/devices", alice, registerReq, &registered)
	if status != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", status)
	}
	if registered.DeviceID != 1 || registered.DeviceName != "Linux Browser" {
		t.Fatalf("unexpected registration response: %+v", registered)
	}

	// Bob discovers alice's devices, fetches her bundle, consumes the prekey.
	var devices dto.ListDevicesResponse
	status = doJSON(t, http.MethodGet, srv.URL+"/api/signal/principals/alice/devices", bob, nil, &devices)
	if status != http.StatusOK || len(devices.Devices) != 1 {
		t.Fatalf("device discovery failed: status %d, %+v", status, devices)
	}

	var bundle dto.PreKeyBundle
	status = doJSON(t, http.MethodGet, srv.URL+"/api/signal/bundles/alice/1", bob, nil, &bundle)
	if status != http.StatusOK {
		t.Fatalf("bundle: expected 200, got %d", status)
	}
	if bundle.IdentityKey != "alice-identity" || bundle.PreKey == nil {
		t.Fatalf("unexpected bundle: %+v", bundle)
	}

	var second dto.PreKeyBundle
	status = doJSON(t, http.MethodGet, srv.URL+"/api/signal/bundles/alice/1", bob, nil, &second)
	if status != http.StatusOK {
		t.Fatalf("second bundle: expected 200, got %d", status)
	}
	if second.PreKey != nil {
		t.Fatalf("pool of one should be exhausted after the first bundle")
	}

	// Bob fans a ciphertext out to alice's device; alice fetches it.
	storeReq := dto.StoreCiphertextsRequest{
		MessageID:      "msg-1",
		SenderDeviceID: 1,
		Ciphertexts: []dto.CiphertextEntry{
			{TargetPrincipal: "alice", TargetDeviceID: 1, Ciphertext: "sealed", MessageType: 1},
		},
	}
	status = doJSON(t, http.MethodPost, srv.URL+"/api/signal/messages", bob, storeReq, nil)
	if status != http.StatusCreated {
		t.Fatalf("store ciphertexts: expected 201, got %d", status)
	}

	var fetched dto.FetchCiphertextResponse
	status = doJSON(t, http.MethodGet, srv.URL+"/api/signal/messages/msg-1?deviceId=1", alice, nil, &fetched)
	if status != http.StatusOK {
		t.Fatalf("fetch: expected 200, got %d", status)
	}
	if fetched.Ciphertext != "sealed" || fetched.SenderPrincipal != "bob" {
		t.Fatalf("unexpected envelope: %+v", fetched)
	}

	// Bob never stored anything for his own device.
	status = doJSON(t, http.MethodGet, srv.URL+"/api/signal/messages/msg-1?deviceId=1", bob, nil, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for unaddressed device, got %d", status)
	}
}

func TestBundleUnknownDeviceIs404(t *testing.T) {
	srv := newTestServer(t)
	bob := bearerToken(t, "bob")

	status := doJSON(t, http.MethodGet, srv.URL+"/api/signal/bundles/ghost/1", bob, nil, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}
