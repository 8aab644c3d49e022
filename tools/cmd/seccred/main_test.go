package main

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "gateway"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	return priv, der
}

func decrypt(t *testing.T, priv *rsa.PrivateKey, out string) string {
	t.Helper()
	ct, err := base64.StdEncoding.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	pt, err := rsa.DecryptPKCS1v15(rand.Reader, priv, ct)
	require.NoError(t, err)
	return string(pt)
}

func TestPublicKeyFormats(t *testing.T) {
	priv, der := testKey(t)
	spki, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)

	inputs := map[string][]byte{
		"pem certificate": pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		"der certificate": der,
		"pkix":            pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: spki}),
		"pkcs1":           pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&priv.PublicKey)}),
	}
	for name, raw := range inputs {
		t.Run(name, func(t *testing.T) {
			key, err := publicKey(raw)
			require.NoError(t, err)
			assert.Equal(t, priv.PublicKey.N, key.N)
		})
	}

	_, err = publicKey(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte{1}}))
	assert.Error(t, err)
}

func TestEncryptCommand(t *testing.T) {
	priv, der := testKey(t)
	path := filepath.Join(t.TempDir(), "cert.cer")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"encrypt", "--password", "Safaricom999!", "--cert", path})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "Safaricom999!", decrypt(t, priv, out.String()))
}

func TestEncryptRequiresFlags(t *testing.T) {
	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"encrypt", "--password", "x"})
	assert.Error(t, cmd.Execute())
}

func TestPasswordCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"password", "--shortcode", "174379", "--passkey", "pk"})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	ts := strings.TrimPrefix(lines[0], "timestamp=")
	assert.Len(t, ts, 14)
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(lines[1], "password="))
	require.NoError(t, err)
	assert.Equal(t, "174379pk"+ts, string(raw))
}
