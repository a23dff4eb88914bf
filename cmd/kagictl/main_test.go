package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ueckoken/kagi/internal/application/services"
	"github.com/ueckoken/kagi/internal/core/domain/auth"
)

// godotenv never overrides variables that are already set, so tests use t.Setenv.
func setEnv(t *testing.T, kv ...string) {
	t.Helper()
	for i := 0; i+1 < len(kv); i += 2 {
		t.Setenv(kv[i], kv[i+1])
	}
}

func fakePWM(t *testing.T) (root, channelDir string) {
	t.Helper()
	root = t.TempDir()
	chip := filepath.Join(root, "pwmchip0")
	channelDir = filepath.Join(chip, "pwm0")
	require.NoError(t, os.MkdirAll(channelDir, 0o755))
	for _, f := range []string{filepath.Join(chip, "export"), filepath.Join(channelDir, "period"), filepath.Join(channelDir, "duty_cycle"), filepath.Join(channelDir, "enable")} {
		require.NoError(t, os.WriteFile(f, nil, 0o600))
	}
	return root, channelDir
}

func TestToken_MintsValidToken(t *testing.T) {
	t.Setenv("STATUS_JWT_SECRET", "s3cret")
	var out bytes.Buffer
	require.NoError(t, run([]string{"token", "--ttl", "1h", "--subject", "ops"}, nil, &out))

	var tok auth.TokenResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &tok))
	require.EqualValues(t, 3600, tok.ExpiresIn)

	svc, err := services.NewTokenService("s3cret")
	require.NoError(t, err)
	claims, err := svc.Validate(tok.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "ops", claims.Subject)
}

func TestToken_NeedsSecret(t *testing.T) {
	t.Setenv("STATUS_JWT_SECRET", "")
	require.Error(t, run([]string{"token"}, nil, &bytes.Buffer{}))
}

func TestVerify_AgainstAuthority(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "k", r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte(`{"verified":true}`))
	}))
	defer srv.Close()

	setEnv(t,
		"AUTHORITY_BASE_URL", srv.URL,
		"AUTHORITY_API_KEY", "k",
		"CACHE_BACKEND", "memory",
		"AUTHORITY_TIMEOUT", time.Second.String(),
	)
	var out bytes.Buffer
	require.NoError(t, run([]string{"verify", "0123abcd"}, nil, &out))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Equal(t, "verified", got["status"])
	require.Equal(t, true, got["granted"])
	require.Equal(t, "0123abcd", got["idm"])
}

func TestServo_WritesDuty(t *testing.T) {
	root, dir := fakePWM(t)
	setEnv(t, "HARDWARE_PWM_ROOT", root)
	require.NoError(t, run([]string{"servo", "180"}, nil, &bytes.Buffer{}))

	duty, err := os.ReadFile(filepath.Join(dir, "duty_cycle"))
	require.NoError(t, err)
	require.Equal(t, "2500000", strings.TrimSpace(string(duty)))
}

func TestServo_Interactive(t *testing.T) {
	root, dir := fakePWM(t)
	setEnv(t, "HARDWARE_PWM_ROOT", root)
	var out bytes.Buffer
	require.NoError(t, run([]string{"servo", "-i"}, strings.NewReader("0\nabc\n200\n"), &out))
	require.Contains(t, out.String(), `not a number: "abc"`)
	require.Contains(t, out.String(), "out of range")

	duty, err := os.ReadFile(filepath.Join(dir, "duty_cycle"))
	require.NoError(t, err)
	require.Equal(t, "500000", strings.TrimSpace(string(duty)))
}

func TestUnknownCommand(t *testing.T) {
	require.Error(t, run([]string{"open-sesame"}, nil, &bytes.Buffer{}))
	require.Error(t, run(nil, nil, &bytes.Buffer{}))
}
