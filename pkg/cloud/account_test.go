package cloud_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/illmade-knight/go-dysonlocal/pkg/cloud"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCloud is a scripted account API.
type fakeCloud struct {
	accountStatus string
	verifyStatus  int
	authStatus    int
	manifest      []cloud.DeviceInfo
	lastAuth      string
	lastVerify    map[string]string
}

func (f *fakeCloud) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/provisioningservice/application/Android/version", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "android client", r.Header.Get("User-Agent"))
		_ = json.NewEncoder(w).Encode("5.0.21061")
	})
	mux.HandleFunc("POST /v3/userregistration/email/userstatus", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GB", r.URL.Query().Get("country"))
		_ = json.NewEncoder(w).Encode(map[string]string{"accountStatus": f.accountStatus, "authenticationMethod": "EMAIL_PWD_2FA"})
	})
	mux.HandleFunc("POST /v3/userregistration/email/auth", func(w http.ResponseWriter, r *http.Request) {
		if f.authStatus != 0 {
			w.WriteHeader(f.authStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"challengeId": "challenge-1"})
	})
	mux.HandleFunc("POST /v3/userregistration/email/verify", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastVerify))
		if f.verifyStatus != 0 {
			w.WriteHeader(f.verifyStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"account": "acc-1", "token": "tok-1", "tokenType": "Bearer"})
	})
	mux.HandleFunc("GET /v2/provisioningservice/manifest", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth = r.Header.Get("Authorization")
		if f.lastAuth != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(f.manifest)
	})
	return mux
}

func newAccount(t *testing.T, fake *fakeCloud, auth *cloud.AuthInfo) *cloud.Account {
	t.Helper()
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)
	cfg := cloud.DefaultConfig()
	cfg.BaseURL = server.URL
	account, err := cloud.NewAccount(cfg, auth, server.Client(), zerolog.Nop())
	require.NoError(t, err)
	return account
}

func TestAccount_Login(t *testing.T) {
	// Arrange
	credential, err := cloud.EncryptLocalCredential("NK6-EU-MHA0000A", "hash==")
	require.NoError(t, err)
	fake := &fakeCloud{
		accountStatus: "ACTIVE",
		manifest: []cloud.DeviceInfo{
			{Serial: "NK6-EU-MHA0000A", Name: "Bedroom", ProductType: "438", LocalCredentials: credential},
		},
	}
	account := newAccount(t, fake, nil)
	ctx := context.Background()

	_, err = account.Devices(ctx)
	require.ErrorIs(t, err, cloud.ErrAuthRequired)

	// Act
	challenge, err := account.BeginLogin(ctx, "user@example.com")
	require.NoError(t, err)
	auth, err := account.CompleteLogin(ctx, challenge, "123456", "secret")
	require.NoError(t, err)
	devices, err := account.Devices(ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "challenge-1", challenge.ID)
	assert.Equal(t, map[string]string{"email": "user@example.com", "password": "secret", "challengeId": "challenge-1", "otpCode": "123456"}, fake.lastVerify)
	assert.Equal(t, "tok-1", auth.Token)
	assert.Equal(t, "Bearer tok-1", fake.lastAuth)
	require.Len(t, devices, 1)
	id, err := devices[0].Identity()
	require.NoError(t, err)
	assert.Equal(t, "NK6-EU-MHA0000A", id.Serial)
	assert.Equal(t, "438", id.DeviceType)
	assert.Equal(t, "hash==", id.Credential)
}

func TestAccount_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("inactive account", func(t *testing.T) {
		account := newAccount(t, &fakeCloud{accountStatus: "UNREGISTERED"}, nil)
		_, err := account.BeginLogin(ctx, "user@example.com")
		assert.ErrorIs(t, err, cloud.ErrAccountNotActive)
	})

	t.Run("code requested too often", func(t *testing.T) {
		account := newAccount(t, &fakeCloud{accountStatus: "ACTIVE", authStatus: http.StatusTooManyRequests}, nil)
		_, err := account.BeginLogin(ctx, "user@example.com")
		assert.ErrorIs(t, err, cloud.ErrOTPTooFrequently)
	})

	t.Run("wrong code", func(t *testing.T) {
		account := newAccount(t, &fakeCloud{accountStatus: "ACTIVE", verifyStatus: http.StatusBadRequest}, nil)
		_, err := account.CompleteLogin(ctx, cloud.Challenge{ID: "challenge-1", Email: "user@example.com"}, "000000", "secret")
		assert.ErrorIs(t, err, cloud.ErrLoginFailure)
		assert.Nil(t, account.Auth())
	})

	t.Run("server error", func(t *testing.T) {
		account := newAccount(t, &fakeCloud{accountStatus: "ACTIVE", verifyStatus: http.StatusBadGateway}, nil)
		_, err := account.CompleteLogin(ctx, cloud.Challenge{ID: "challenge-1"}, "000000", "secret")
		assert.ErrorIs(t, err, cloud.ErrServer)
	})

	t.Run("expired token", func(t *testing.T) {
		account := newAccount(t, &fakeCloud{}, &cloud.AuthInfo{Token: "stale", TokenType: "Bearer"})
		_, err := account.Devices(ctx)
		assert.ErrorIs(t, err, cloud.ErrInvalidAuth)
	})

	t.Run("unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		server.Close()
		cfg := cloud.DefaultConfig()
		cfg.BaseURL = server.URL
		account, err := cloud.NewAccount(cfg, nil, nil, zerolog.Nop())
		require.NoError(t, err)
		_, err = account.Provision(ctx)
		assert.ErrorIs(t, err, cloud.ErrNetwork)
	})
}

func TestDecryptLocalCredential(t *testing.T) {
	encrypted, err := cloud.EncryptLocalCredential("NK6-EU-MHA0000A", "1/aJ5t52WvAfn+z+fjDuef86kQDQPefbQ6/70ZGysII1Ke1i0ZHakFH84DZuxsSQ4KTT2vbCm7uYeTORULKLKQ==")
	require.NoError(t, err)

	hash, err := cloud.DecryptLocalCredential(encrypted)

	require.NoError(t, err)
	assert.Equal(t, "1/aJ5t52WvAfn+z+fjDuef86kQDQPefbQ6/70ZGysII1Ke1i0ZHakFH84DZuxsSQ4KTT2vbCm7uYeTORULKLKQ==", hash)

	_, err = cloud.DecryptLocalCredential("not base64!")
	assert.ErrorIs(t, err, cloud.ErrCredential)
	_, err = cloud.DecryptLocalCredential("AAAA")
	assert.ErrorIs(t, err, cloud.ErrCredential)
}

func TestDeviceInfo_DeviceType(t *testing.T) {
	assert.Equal(t, "438", cloud.DeviceInfo{ProductType: "438"}.DeviceType())
	assert.Equal(t, "438M", cloud.DeviceInfo{ProductType: "438", MQTTRootTopicLevel: "438M"}.DeviceType())
}
